package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/systmms/objsign/internal/credential"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/providers"
	"github.com/systmms/objsign/internal/stack"
)

const noUpdatesMessage = "No updates are to be performed"

// SerialOutputKey is the stack output recording the deployed rotation serial
const SerialOutputKey = "S3" + providers.OutputAccessKeySerial

// CloudFormationAPI is the subset of the CloudFormation client used here
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	UpdateTerminationProtection(ctx context.Context, params *cloudformation.UpdateTerminationProtectionInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateTerminationProtectionOutput, error)
}

// CloudFormation deploys stacks with AWS CloudFormation
type CloudFormation struct {
	client      CloudFormationAPI
	logger      *logging.Logger
	wait        bool
	waitTimeout time.Duration
}

// CloudFormationOption is a functional option for CloudFormation
type CloudFormationOption func(*CloudFormation)

// WithCloudFormationClient sets a custom client (for testing)
func WithCloudFormationClient(client CloudFormationAPI) CloudFormationOption {
	return func(c *CloudFormation) {
		c.client = client
	}
}

// WithWait makes Submit block until the stack settles, up to timeout
func WithWait(timeout time.Duration) CloudFormationOption {
	return func(c *CloudFormation) {
		c.wait = true
		c.waitTimeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) CloudFormationOption {
	return func(c *CloudFormation) {
		c.logger = logger
	}
}

// NewCloudFormation creates the adapter. Without WithCloudFormationClient a
// client is built from the default AWS configuration chain.
func NewCloudFormation(ctx context.Context, awsOpts []func(*awsconfig.LoadOptions) error, opts ...CloudFormationOption) (*CloudFormation, error) {
	c := &CloudFormation{waitTimeout: 30 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		c.client = cloudformation.NewFromConfig(cfg)
	}
	return c, nil
}

// Submit creates the stack or updates it in place. An update with nothing
// to change succeeds without waiting.
func (c *CloudFormation) Submit(ctx context.Context, s *stack.Stack) error {
	body, err := s.Template.JSON()
	if err != nil {
		return err
	}

	deployed, err := c.describe(ctx, s.Name)
	if err != nil {
		return err
	}

	protect := !s.IsDevelopment
	capabilities := []cftypes.Capability{cftypes.CapabilityCapabilityIam}

	if deployed == nil {
		c.logger.Info("Creating stack %s", s.Name)
		_, err := c.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:                   aws.String(s.Name),
			TemplateBody:                aws.String(string(body)),
			Capabilities:                capabilities,
			Tags:                        stackTags(s.Tags),
			EnableTerminationProtection: aws.Bool(protect),
		})
		if err != nil {
			return dserrors.ProviderError("cloudformation", "create stack", err)
		}
		if c.wait {
			waiter := cloudformation.NewStackCreateCompleteWaiter(c.client)
			if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(s.Name)}, c.waitTimeout); err != nil {
				return dserrors.ProviderError("cloudformation", "wait for stack creation", err)
			}
		}
		c.logger.Info("Stack %s submitted", s.Name)
		return nil
	}

	if aws.ToBool(deployed.EnableTerminationProtection) != protect {
		_, err := c.client.UpdateTerminationProtection(ctx, &cloudformation.UpdateTerminationProtectionInput{
			StackName:                   aws.String(s.Name),
			EnableTerminationProtection: aws.Bool(protect),
		})
		if err != nil {
			return dserrors.ProviderError("cloudformation", "update termination protection", err)
		}
		c.logger.Debug("Termination protection for %s set to %t", s.Name, protect)
	}

	c.logger.Info("Updating stack %s", s.Name)
	_, err = c.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(s.Name),
		TemplateBody: aws.String(string(body)),
		Capabilities: capabilities,
		Tags:         stackTags(s.Tags),
	})
	if err != nil {
		if isNoUpdates(err) {
			c.logger.Info("Stack %s is already up to date", s.Name)
			return nil
		}
		return dserrors.ProviderError("cloudformation", "update stack", err)
	}
	if c.wait {
		waiter := cloudformation.NewStackUpdateCompleteWaiter(c.client)
		if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(s.Name)}, c.waitTimeout); err != nil {
			return dserrors.ProviderError("cloudformation", "wait for stack update", err)
		}
	}
	c.logger.Info("Stack %s submitted", s.Name)
	return nil
}

// PreviousSerial reads the rotation serial of the deployed stack. It is -1
// when the stack does not exist or issued no credential.
func (c *CloudFormation) PreviousSerial(ctx context.Context, name string) (int, error) {
	deployed, err := c.describe(ctx, name)
	if err != nil || deployed == nil {
		return -1, err
	}

	for _, o := range deployed.Outputs {
		if aws.ToString(o.OutputKey) != SerialOutputKey {
			continue
		}
		serial, err := strconv.Atoi(aws.ToString(o.OutputValue))
		if err != nil {
			return -1, fmt.Errorf("stack %s has a malformed %s output: %w", name, SerialOutputKey, err)
		}
		return serial, nil
	}
	return -1, nil
}

// Rotation compares the deployed serial with the stack's. A stack without
// a capable provider never rotates.
func (c *CloudFormation) Rotation(ctx context.Context, s *stack.Stack) (credential.Rotation, int, error) {
	previous, err := c.PreviousSerial(ctx, s.Name)
	if err != nil {
		return credential.Unchanged, previous, err
	}
	next := s.RotationSerial()
	if next < 0 {
		return credential.Unchanged, previous, nil
	}
	rotation, err := credential.CheckSerial(previous, next)
	if err != nil {
		return rotation, previous, dserrors.UserError{
			Message:    "Refusing to lower the rotation serial",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Set s3.rotationSerial to %d to keep the current key or %d to rotate it", previous, previous+1),
			Err:        err,
		}
	}
	return rotation, previous, nil
}

// Status returns the deployed stack's status, or "" when it does not exist
func (c *CloudFormation) Status(ctx context.Context, name string) (string, error) {
	deployed, err := c.describe(ctx, name)
	if err != nil || deployed == nil {
		return "", err
	}
	return string(deployed.StackStatus), nil
}

func (c *CloudFormation) describe(ctx context.Context, name string) (*cftypes.Stack, error) {
	out, err := c.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, dserrors.ProviderError("cloudformation", "describe stack", err)
	}
	if len(out.Stacks) == 0 {
		return nil, nil
	}
	st := out.Stacks[0]
	if st.StackStatus == cftypes.StackStatusDeleteComplete {
		return nil, nil
	}
	return &st, nil
}

func stackTags(tags map[string]string) []cftypes.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cftypes.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, cftypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func isNotExist(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorMessage(), noUpdatesMessage)
}
