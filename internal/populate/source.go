package populate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/secure"
	"google.golang.org/api/option"
)

// Source supplies secret material
type Source interface {
	Read(ctx context.Context) (*secure.SecureBuffer, error)
	Describe() string
}

// ReaderSource reads material from a stream such as stdin
type ReaderSource struct {
	Name   string
	Reader io.Reader
}

// Read implements Source
func (s ReaderSource) Read(_ context.Context) (*secure.SecureBuffer, error) {
	return secure.ReadSecureBuffer(s.Reader)
}

// Describe implements Source
func (s ReaderSource) Describe() string {
	return s.Name
}

// FileSource reads material from a file. "-" means stdin.
type FileSource struct {
	Path  string
	Stdin io.Reader
}

// Read implements Source
func (s FileSource) Read(ctx context.Context) (*secure.SecureBuffer, error) {
	if s.Path == "-" {
		stdin := s.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return ReaderSource{Name: "stdin", Reader: stdin}.Read(ctx)
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to open secret material",
			Details:    err.Error(),
			Suggestion: "Check the path passed to --from-file",
			Err:        err,
		}
	}
	defer func() { _ = f.Close() }()
	return ReaderSource{Name: s.Path, Reader: f}.Read(ctx)
}

// Describe implements Source
func (s FileSource) Describe() string {
	if s.Path == "-" {
		return "stdin"
	}
	return s.Path
}

// GCPSecretAccessor is the subset of the Secret Manager client used here
type GCPSecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPSource copies material out of Google Cloud Secret Manager, typically
// a service account key exported by whoever owns the GCS bucket
type GCPSource struct {
	Client  GCPSecretAccessor
	Project string
	Secret  string
	Version string
}

// ParseGCPReference splits "secret" or "secret@version"
func ParseGCPReference(ref string) (secret, version string) {
	secret, version, found := strings.Cut(ref, "@")
	if !found || version == "" {
		version = "latest"
	}
	return secret, version
}

// NewGCPClient creates a Secret Manager client. An empty credentialsFile
// uses application default credentials.
func NewGCPClient(ctx context.Context, credentialsFile string) (*secretmanager.Client, error) {
	var clientOptions []option.ClientOption
	if credentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, dserrors.ProviderError("gcp-secretmanager", "client creation", err)
	}
	return client, nil
}

// VersionName is the full resource name of the source version
func (s GCPSource) VersionName() string {
	version := s.Version
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", s.Project, s.Secret, version)
}

// Read implements Source
func (s GCPSource) Read(ctx context.Context) (*secure.SecureBuffer, error) {
	if s.Project == "" {
		return nil, dserrors.UserError{
			Message:    "No Google Cloud project for the source secret",
			Suggestion: "Pass --gcp-project or set GOOGLE_CLOUD_PROJECT",
		}
	}

	resp, err := s.Client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.VersionName(),
	})
	if err != nil {
		return nil, dserrors.ProviderError("gcp-secretmanager", "access "+s.VersionName(), err)
	}
	return secure.NewSecureBuffer(resp.GetPayload().GetData())
}

// Describe implements Source
func (s GCPSource) Describe() string {
	return "gcp:" + s.VersionName()
}
