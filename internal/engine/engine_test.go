package engine_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/credential"
	"github.com/systmms/objsign/internal/directory"
	"github.com/systmms/objsign/internal/engine"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/scope"
	"github.com/systmms/objsign/internal/stack"
	"github.com/systmms/objsign/tests/fakes"
)

func buildStack(t *testing.T, serial int, dev bool) *stack.Stack {
	t.Helper()
	def := &config.Definition{
		StackName:                   "ObjectSigning",
		InfrastructureReferenceName: "Infra",
		Description:                 "Object signing",
		IsDevelopment:               dev,
		Tags:                        map[string]string{"team": "genomics"},
		S3: &config.S3Block{
			RotationSerial:  serial,
			DataBucketPaths: scope.BucketPaths{{Bucket: "bucket-a", Patterns: []string{"FLAGSHIP_A/*"}}},
		},
	}
	s, err := stack.Assemble(context.Background(), def, directory.Static{"Infra": {ARN: "arn", ID: "ns-1", Name: "n"}})
	require.NoError(t, err)
	return s
}

func newCloudFormation(t *testing.T, client engine.CloudFormationAPI, opts ...engine.CloudFormationOption) *engine.CloudFormation {
	t.Helper()
	opts = append([]engine.CloudFormationOption{
		engine.WithCloudFormationClient(client),
		engine.WithLogger(logging.Discard()),
	}, opts...)
	cf, err := engine.NewCloudFormation(context.Background(), nil, opts...)
	require.NoError(t, err)
	return cf
}

func TestCloudFormation_Create(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client)

	require.NoError(t, cf.Submit(context.Background(), buildStack(t, 1, false)))

	deployed := client.Stacks["ObjectSigning"]
	require.NotNil(t, deployed)
	assert.Equal(t, 1, client.Creates)
	assert.True(t, deployed.TerminationProtection)
	assert.Equal(t, []cftypes.Capability{cftypes.CapabilityCapabilityIam}, deployed.Capabilities)
	require.Len(t, deployed.Tags, 2)
	assert.Equal(t, "objsign:development", aws.ToString(deployed.Tags[0].Key))
	assert.Equal(t, "team", aws.ToString(deployed.Tags[1].Key))

	var tmpl map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(deployed.Template), &tmpl))
	assert.Equal(t, "Object signing", tmpl["Description"])
}

func TestCloudFormation_DevelopmentSkipsProtection(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	require.NoError(t, newCloudFormation(t, client).Submit(context.Background(), buildStack(t, 1, true)))
	assert.False(t, client.Stacks["ObjectSigning"].TerminationProtection)
}

func TestCloudFormation_UpdateAndNoop(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client)
	ctx := context.Background()

	require.NoError(t, cf.Submit(ctx, buildStack(t, 1, false)))
	require.NoError(t, cf.Submit(ctx, buildStack(t, 1, false)))
	assert.Equal(t, 0, client.Updates)

	require.NoError(t, cf.Submit(ctx, buildStack(t, 2, false)))
	assert.Equal(t, 1, client.Creates)
	assert.Equal(t, 1, client.Updates)
	assert.Equal(t, cftypes.StackStatusUpdateComplete, client.Stacks["ObjectSigning"].Status)
}

func TestCloudFormation_UpdateTogglesProtection(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client)
	ctx := context.Background()

	require.NoError(t, cf.Submit(ctx, buildStack(t, 1, true)))
	require.NoError(t, cf.Submit(ctx, buildStack(t, 1, false)))
	assert.True(t, client.Stacks["ObjectSigning"].TerminationProtection)
}

func TestCloudFormation_Wait(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client, engine.WithWait(time.Minute))
	require.NoError(t, cf.Submit(context.Background(), buildStack(t, 1, false)))
}

func TestCloudFormation_CreateError(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	client.Errors["CreateStack"] = &smithy.GenericAPIError{Code: "InsufficientCapabilitiesException", Message: "Requires capabilities : [CAPABILITY_IAM]"}

	err := newCloudFormation(t, client).Submit(context.Background(), buildStack(t, 1, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPABILITY_IAM must be acknowledged")
}

func TestCloudFormation_PreviousSerial(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client)
	ctx := context.Background()

	serial, err := cf.PreviousSerial(ctx, "ObjectSigning")
	require.NoError(t, err)
	assert.Equal(t, -1, serial)

	require.NoError(t, cf.Submit(ctx, buildStack(t, 3, false)))
	serial, err = cf.PreviousSerial(ctx, "ObjectSigning")
	require.NoError(t, err)
	assert.Equal(t, -1, serial)

	client.Stacks["ObjectSigning"].Outputs[engine.SerialOutputKey] = "3"
	serial, err = cf.PreviousSerial(ctx, "ObjectSigning")
	require.NoError(t, err)
	assert.Equal(t, 3, serial)

	client.Stacks["ObjectSigning"].Outputs[engine.SerialOutputKey] = "three"
	_, err = cf.PreviousSerial(ctx, "ObjectSigning")
	assert.Error(t, err)
}

func TestCloudFormation_Rotation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		deployed string
		next     int
		want     credential.Rotation
		wantErr  bool
	}{
		{name: "not deployed", deployed: "", next: 1, want: credential.Initial},
		{name: "same serial", deployed: "2", next: 2, want: credential.Unchanged},
		{name: "incremented", deployed: "2", next: 3, want: credential.Rotated},
		{name: "lowered", deployed: "2", next: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fakes.NewFakeCloudFormationClient()
			if tt.deployed != "" {
				client.Stacks["ObjectSigning"] = &fakes.FakeStack{
					Name:    "ObjectSigning",
					Status:  cftypes.StackStatusCreateComplete,
					Outputs: map[string]string{engine.SerialOutputKey: tt.deployed},
				}
			}

			rotation, _, err := newCloudFormation(t, client).Rotation(context.Background(), buildStack(t, tt.next, false))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, credential.ErrSerialDecreased)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rotation)
		})
	}
}

func TestCloudFormation_Status(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeCloudFormationClient()
	cf := newCloudFormation(t, client)

	status, err := cf.Status(context.Background(), "ObjectSigning")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, cf.Submit(context.Background(), buildStack(t, 1, false)))
	status, err = cf.Status(context.Background(), "ObjectSigning")
	require.NoError(t, err)
	assert.Equal(t, "CREATE_COMPLETE", status)
}

func TestFile_Submit(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	f := engine.File{Dir: dir, Logger: logging.Discard()}
	s := buildStack(t, 1, false)

	require.NoError(t, f.Submit(context.Background(), s))

	raw, err := os.ReadFile(filepath.Join(dir, "ObjectSigning.template.json"))
	require.NoError(t, err)
	var tmpl map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &tmpl))
	assert.Equal(t, "2010-09-09", tmpl["AWSTemplateFormatVersion"])
}
