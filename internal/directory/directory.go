// Package directory looks up the shared infrastructure a signing stack binds
// to. The infrastructure stack publishes its Cloud Map HTTP namespace as SSM
// parameters under /<infrastructureReferenceName>/HttpNamespace/.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
)

// Parameter names below the namespace path
const (
	ParamNamespaceARN  = "namespaceArn"
	ParamNamespaceID   = "namespaceId"
	ParamNamespaceName = "namespaceName"
)

// ErrNamespaceNotFound is returned when the infrastructure reference does
// not resolve to a complete namespace
var ErrNamespaceNotFound = errors.New("namespace not found")

// Namespace is a Cloud Map HTTP namespace
type Namespace struct {
	ARN  string
	ID   string
	Name string
}

// Resolver resolves an infrastructure reference to its namespace
type Resolver interface {
	ResolveNamespace(ctx context.Context, reference string) (Namespace, error)
}

// NamespacePath returns the parameter path prefix for a reference
func NamespacePath(reference string) string {
	return "/" + strings.Trim(reference, "/") + "/HttpNamespace/"
}

// SSMClientAPI is the subset of the SSM client used for lookups
type SSMClientAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMResolver reads namespace parameters from SSM Parameter Store
type SSMResolver struct {
	client SSMClientAPI
	logger *logging.Logger
}

// SSMResolverOption is a functional option for SSMResolver
type SSMResolverOption func(*SSMResolver)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) SSMResolverOption {
	return func(r *SSMResolver) {
		r.client = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) SSMResolverOption {
	return func(r *SSMResolver) {
		r.logger = logger
	}
}

// NewSSMResolver creates a resolver. Without WithSSMClient a client is built
// from the default AWS configuration chain.
func NewSSMResolver(ctx context.Context, awsOpts []func(*awsconfig.LoadOptions) error, opts ...SSMResolverOption) (*SSMResolver, error) {
	r := &SSMResolver{}
	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		r.client = ssm.NewFromConfig(cfg)
	}

	return r, nil
}

// ResolveNamespace fetches all three namespace parameters in one call. Any
// missing parameter fails the lookup.
func (r *SSMResolver) ResolveNamespace(ctx context.Context, reference string) (Namespace, error) {
	if reference == "" {
		return Namespace{}, fmt.Errorf("%w: empty infrastructure reference", ErrNamespaceNotFound)
	}

	prefix := NamespacePath(reference)
	names := []string{
		prefix + ParamNamespaceARN,
		prefix + ParamNamespaceID,
		prefix + ParamNamespaceName,
	}
	r.logger.Debug("Resolving namespace parameters under %s", prefix)

	out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names: names,
	})
	if err != nil {
		return Namespace{}, dserrors.ProviderError("ssm", "namespace lookup", err)
	}

	if len(out.InvalidParameters) > 0 {
		missing := append([]string(nil), out.InvalidParameters...)
		sort.Strings(missing)
		return Namespace{}, dserrors.UserError{
			Message:    fmt.Sprintf("Infrastructure %q is not published", reference),
			Details:    "missing parameters: " + strings.Join(missing, ", "),
			Suggestion: "Deploy the infrastructure stack first, or check infrastructureReferenceName and the AWS region",
			Err:        ErrNamespaceNotFound,
		}
	}

	values := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		values[strings.TrimPrefix(aws.ToString(p.Name), prefix)] = aws.ToString(p.Value)
	}

	ns := Namespace{
		ARN:  values[ParamNamespaceARN],
		ID:   values[ParamNamespaceID],
		Name: values[ParamNamespaceName],
	}
	if ns.ARN == "" || ns.ID == "" || ns.Name == "" {
		return Namespace{}, dserrors.UserError{
			Message:    fmt.Sprintf("Infrastructure %q published an incomplete namespace", reference),
			Suggestion: "Check that namespaceArn, namespaceId and namespaceName under " + prefix + " are non-empty",
			Err:        ErrNamespaceNotFound,
		}
	}

	r.logger.Debug("Resolved namespace %s (%s)", ns.Name, ns.ID)
	return ns, nil
}

// Static resolves references from a fixed table. Used for offline synthesis.
type Static map[string]Namespace

// ResolveNamespace implements Resolver
func (s Static) ResolveNamespace(_ context.Context, reference string) (Namespace, error) {
	ns, ok := s[reference]
	if !ok {
		return Namespace{}, fmt.Errorf("%w: %s", ErrNamespaceNotFound, reference)
	}
	return ns, nil
}
