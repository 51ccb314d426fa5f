package fakes

import (
	"context"
	"fmt"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient is a mock implementation of AccessSecretVersion
type FakeGCPSecretManagerClient struct {
	// Versions maps version resource names (projects/X/secrets/Y/versions/Z) to payloads
	Versions map[string][]byte
	// Errors maps version resource names to errors to return
	Errors map[string]error
	// Requests records every requested version name
	Requests []string
}

// NewFakeGCPSecretManagerClient creates a new mock GCP Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string][]byte),
		Errors:   make(map[string]error),
	}
}

// AddVersion stores a payload for project/secret/version
func (f *FakeGCPSecretManagerClient) AddVersion(projectID, secretName, version string, data []byte) {
	f.Versions[fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretName, version)] = data
}

// AccessSecretVersion mocks the AccessSecretVersion operation
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	name := req.GetName()
	f.Requests = append(f.Requests, name)

	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	data, ok := f.Versions[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found.", name)
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    name,
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}
