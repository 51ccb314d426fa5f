package fakes

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

// FakeStack is one stack held by FakeCloudFormationClient
type FakeStack struct {
	Name                  string
	Template              string
	Status                cftypes.StackStatus
	Tags                  []cftypes.Tag
	Capabilities          []cftypes.Capability
	TerminationProtection bool
	Outputs               map[string]string
}

// FakeCloudFormationClient is an in-memory CloudFormation. Stacks complete
// immediately; outputs are whatever the test sets.
type FakeCloudFormationClient struct {
	Stacks map[string]*FakeStack
	// Errors maps operation names to errors to return
	Errors map[string]error

	Creates int
	Updates int
}

// NewFakeCloudFormationClient creates an empty fake
func NewFakeCloudFormationClient() *FakeCloudFormationClient {
	return &FakeCloudFormationClient{
		Stacks: make(map[string]*FakeStack),
		Errors: make(map[string]error),
	}
}

func notExist(name string) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: fmt.Sprintf("Stack with id %s does not exist", name),
	}
}

// DescribeStacks mocks the DescribeStacks operation
func (f *FakeCloudFormationClient) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if err, ok := f.Errors["DescribeStacks"]; ok {
		return nil, err
	}
	name := aws.ToString(params.StackName)
	s, ok := f.Stacks[name]
	if !ok {
		return nil, notExist(name)
	}

	stack := cftypes.Stack{
		StackName:                   aws.String(s.Name),
		StackStatus:                 s.Status,
		EnableTerminationProtection: aws.Bool(s.TerminationProtection),
		Tags:                        s.Tags,
	}
	for k, v := range s.Outputs {
		stack.Outputs = append(stack.Outputs, cftypes.Output{
			OutputKey:   aws.String(k),
			OutputValue: aws.String(v),
		})
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cftypes.Stack{stack}}, nil
}

// CreateStack mocks the CreateStack operation
func (f *FakeCloudFormationClient) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	if err, ok := f.Errors["CreateStack"]; ok {
		return nil, err
	}
	name := aws.ToString(params.StackName)
	if _, ok := f.Stacks[name]; ok {
		return nil, &cftypes.AlreadyExistsException{Message: aws.String(fmt.Sprintf("Stack [%s] already exists", name))}
	}

	f.Creates++
	f.Stacks[name] = &FakeStack{
		Name:                  name,
		Template:              aws.ToString(params.TemplateBody),
		Status:                cftypes.StackStatusCreateComplete,
		Tags:                  params.Tags,
		Capabilities:          params.Capabilities,
		TerminationProtection: aws.ToBool(params.EnableTerminationProtection),
		Outputs:               make(map[string]string),
	}
	return &cloudformation.CreateStackOutput{StackId: aws.String("arn:aws:cloudformation:us-east-1:123456789012:stack/" + name)}, nil
}

// UpdateStack mocks the UpdateStack operation
func (f *FakeCloudFormationClient) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	if err, ok := f.Errors["UpdateStack"]; ok {
		return nil, err
	}
	name := aws.ToString(params.StackName)
	s, ok := f.Stacks[name]
	if !ok {
		return nil, notExist(name)
	}

	body := aws.ToString(params.TemplateBody)
	if body == s.Template && sameTags(s.Tags, params.Tags) {
		return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}
	}

	f.Updates++
	s.Template = body
	s.Tags = params.Tags
	s.Capabilities = params.Capabilities
	s.Status = cftypes.StackStatusUpdateComplete
	return &cloudformation.UpdateStackOutput{StackId: aws.String("arn:aws:cloudformation:us-east-1:123456789012:stack/" + name)}, nil
}

// UpdateTerminationProtection mocks the UpdateTerminationProtection operation
func (f *FakeCloudFormationClient) UpdateTerminationProtection(ctx context.Context, params *cloudformation.UpdateTerminationProtectionInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateTerminationProtectionOutput, error) {
	name := aws.ToString(params.StackName)
	s, ok := f.Stacks[name]
	if !ok {
		return nil, notExist(name)
	}
	s.TerminationProtection = aws.ToBool(params.EnableTerminationProtection)
	return &cloudformation.UpdateTerminationProtectionOutput{StackId: aws.String(name)}, nil
}

func sameTags(a, b []cftypes.Tag) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if aws.ToString(a[i].Key) != aws.ToString(b[i].Key) || aws.ToString(a[i].Value) != aws.ToString(b[i].Value) {
			return false
		}
	}
	return true
}
