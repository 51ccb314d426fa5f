package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FakeSSMClient is a mock implementation of the SSM GetParameters operation
type FakeSSMClient struct {
	// Parameters maps parameter names to values
	Parameters map[string]string
	// Err is returned from every call when set
	Err error
	// Calls records the names requested per call
	Calls [][]string
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{Parameters: make(map[string]string)}
}

// PublishNamespace adds the three namespace parameters for a reference
func (f *FakeSSMClient) PublishNamespace(reference, arn, id, name string) {
	prefix := "/" + reference + "/HttpNamespace/"
	f.Parameters[prefix+"namespaceArn"] = arn
	f.Parameters[prefix+"namespaceId"] = id
	f.Parameters[prefix+"namespaceName"] = name
}

// GetParameters mocks the GetParameters operation
func (f *FakeSSMClient) GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.Calls = append(f.Calls, append([]string(nil), params.Names...))
	if f.Err != nil {
		return nil, f.Err
	}

	out := &ssm.GetParametersOutput{}
	for _, name := range params.Names {
		value, ok := f.Parameters[name]
		if !ok {
			out.InvalidParameters = append(out.InvalidParameters, name)
			continue
		}
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:  aws.String(name),
			Value: aws.String(value),
			Type:  ssmtypes.ParameterTypeString,
		})
	}
	return out, nil
}

// FakeSecretsManagerClient is a mock implementation of the Secrets Manager
// operations used to populate placeholder secrets
type FakeSecretsManagerClient struct {
	mu sync.Mutex
	// Secrets maps secret names to their current string value
	Secrets map[string]string
	// Versions counts PutSecretValue calls per secret
	Versions map[string]int
	// Errors maps secret names to errors to return
	Errors map[string]error
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets:  make(map[string]string),
		Versions: make(map[string]int),
		Errors:   make(map[string]error),
	}
}

// AddSecretString adds a string secret to the mock client
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = value
}

// PutSecretValue mocks the PutSecretValue operation
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.SecretId)
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	if _, ok := f.Secrets[name]; !ok {
		return nil, &smtypes.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
		}
	}

	f.Secrets[name] = aws.ToString(params.SecretString)
	f.Versions[name]++
	return &secretsmanager.PutSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name)),
		Name:          aws.String(name),
		VersionId:     aws.String(fmt.Sprintf("v%d", f.Versions[name])),
		VersionStages: []string{"AWSCURRENT"},
	}, nil
}

// FakeSTSClient is a mock implementation of GetCallerIdentity
type FakeSTSClient struct {
	Account string
	Arn     string
	UserID  string
	Err     error
}

// GetCallerIdentity mocks the GetCallerIdentity operation
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.Account),
		Arn:     aws.String(f.Arn),
		UserId:  aws.String(f.UserID),
	}, nil
}
