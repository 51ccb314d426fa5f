// Package populate fills placeholder secrets with operator-supplied
// material. The stack only declares placeholders for providers whose
// identities objsign cannot create; this is how their real credentials
// arrive.
package populate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/systmms/objsign/internal/credential"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/providers"
	"github.com/xeipuuv/gojsonschema"
)

// ErrManagedSecret is returned for secrets the stack writes itself
var ErrManagedSecret = errors.New("secret is managed by the stack")

// ErrInvalidMaterial is returned when material fails its provider's schema
var ErrInvalidMaterial = errors.New("secret material is invalid")

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// Populator writes material into placeholder secrets
type Populator struct {
	client   SecretsManagerAPI
	registry *providers.Registry
	prefix   string
	logger   *logging.Logger
}

// Option is a functional option for Populator
type Option func(*Populator)

// WithSecretsManagerClient sets a custom client (for testing)
func WithSecretsManagerClient(client SecretsManagerAPI) Option {
	return func(p *Populator) {
		p.client = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(p *Populator) {
		p.logger = logger
	}
}

// New creates a populator for secrets named with prefix
func New(ctx context.Context, prefix string, awsOpts []func(*awsconfig.LoadOptions) error, opts ...Option) (*Populator, error) {
	p := &Populator{
		registry: providers.NewRegistry(),
		prefix:   prefix,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		p.client = secretsmanager.NewFromConfig(cfg)
	}
	return p, nil
}

// Result describes a completed write
type Result struct {
	SecretName string
	VersionID  string
}

// Put validates material from src and writes it as the current version of
// the provider's secret
func (p *Populator) Put(ctx context.Context, providerKey string, src Source) (Result, error) {
	d, err := p.registry.Get(providerKey)
	if err != nil {
		return Result{}, dserrors.UserError{
			Message:    err.Error(),
			Suggestion: "Use one of: " + strings.Join(p.registry.Keys(), ", "),
			Err:        err,
		}
	}
	name := credential.SecretName(p.prefix, d.Tag)
	if d.Managed() {
		return Result{}, dserrors.UserError{
			Message:    fmt.Sprintf("%s is written by the stack", name),
			Suggestion: "Increment s3.rotationSerial and deploy to replace this credential",
			Err:        ErrManagedSecret,
		}
	}

	buf, err := src.Read(ctx)
	if err != nil {
		return Result{}, err
	}
	defer buf.Destroy()
	p.logger.Debug("Read %d bytes from %s", buf.Size(), src.Describe())

	var out *secretsmanager.PutSecretValueOutput
	err = buf.Use(func(plaintext []byte) error {
		if err := Validate(d, plaintext); err != nil {
			return err
		}
		var putErr error
		out, putErr = p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(string(plaintext)),
		})
		return putErr
	})
	if err != nil {
		if errors.Is(err, ErrInvalidMaterial) {
			return Result{}, err
		}
		return Result{}, dserrors.ProviderError("secretsmanager", "put secret value", err)
	}

	p.logger.Info("Populated %s from %s", name, src.Describe())
	return Result{SecretName: name, VersionID: aws.ToString(out.VersionId)}, nil
}

// Validate checks material against the provider's schema. Messages name
// fields only, never values.
func Validate(d providers.Descriptor, material []byte) error {
	if d.Managed() {
		return ErrManagedSecret
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(d.MaterialSchema),
		gojsonschema.NewBytesLoader(material),
	)
	if err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("%s material is not valid JSON", d.Tag),
			Suggestion: "Supply the credential as a JSON object",
			Err:        ErrInvalidMaterial,
		}
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.Field()+": "+desc.Description())
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("%s material does not look like a real credential", d.Tag),
		Details:    strings.Join(problems, "; "),
		Suggestion: suggestionFor(d),
		Err:        ErrInvalidMaterial,
	}
}

func suggestionFor(d providers.Descriptor) string {
	switch d.Key {
	case providers.KeyGCS:
		return "Use the JSON key file downloaded for the Google service account"
	case providers.KeyCloudflare:
		return `Supply {"accessKeyId": "...", "secretAccessKey": "..."} from an R2 API token`
	default:
		return "Check the material format for this provider"
	}
}
