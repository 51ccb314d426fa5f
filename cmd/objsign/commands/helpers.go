package commands

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/directory"
	"github.com/systmms/objsign/internal/engine"
	"github.com/systmms/objsign/internal/populate"
	"github.com/systmms/objsign/internal/stack"
)

// STSClientAPI is the subset of the STS client used by doctor
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Cloud collaborators. Tests swap these for fakes.
var (
	newResolver = func(ctx context.Context, cfg *config.Config) (directory.Resolver, error) {
		return directory.NewSSMResolver(ctx, cfg.Settings.AWSOptions(), directory.WithLogger(cfg.Logger))
	}

	newCloudFormation = func(ctx context.Context, cfg *config.Config, opts ...engine.CloudFormationOption) (*engine.CloudFormation, error) {
		opts = append(opts, engine.WithLogger(cfg.Logger))
		return engine.NewCloudFormation(ctx, cfg.Settings.AWSOptions(), opts...)
	}

	newPopulator = func(ctx context.Context, cfg *config.Config, prefix string) (*populate.Populator, error) {
		return populate.New(ctx, prefix, cfg.Settings.AWSOptions(), populate.WithLogger(cfg.Logger))
	}

	newSTSClient = func(ctx context.Context, cfg *config.Config) (STSClientAPI, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, cfg.Settings.AWSOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return sts.NewFromConfig(awsCfg), nil
	}

	newGCPAccessor = func(ctx context.Context, credentialsFile string) (populate.GCPSecretAccessor, func() error, error) {
		client, err := populate.NewGCPClient(ctx, credentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
)

// namespaceFlags bypass the directory lookup when set
type namespaceFlags struct {
	id   string
	name string
	arn  string
}

func (n *namespaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&n.id, "namespace-id", "", "Use this namespace id instead of looking it up in SSM")
	cmd.Flags().StringVar(&n.name, "namespace-name", "", "Namespace name to pair with --namespace-id")
	cmd.Flags().StringVar(&n.arn, "namespace-arn", "", "Namespace ARN to pair with --namespace-id")
}

func (n *namespaceFlags) resolver(ctx context.Context, cfg *config.Config) (directory.Resolver, error) {
	if n.id == "" {
		return newResolver(ctx, cfg)
	}
	ref := cfg.Definition.InfrastructureReferenceName
	name := n.name
	if name == "" {
		name = ref
	}
	cfg.Logger.Debug("Using namespace %s from flags", n.id)
	return directory.Static{ref: {ARN: n.arn, ID: n.id, Name: name}}, nil
}

// assemble loads the configuration and evaluates the stack
func assemble(ctx context.Context, cfg *config.Config, ns *namespaceFlags) (*stack.Stack, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	resolver, err := ns.resolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return stack.Assemble(ctx, cfg.Definition, resolver, stack.WithLogger(cfg.Logger))
}

// displayValue renders an output or property value on one line
func displayValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
