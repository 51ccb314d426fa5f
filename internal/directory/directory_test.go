package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/objsign/internal/directory"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/tests/fakes"
)

func newResolver(t *testing.T, client directory.SSMClientAPI) *directory.SSMResolver {
	t.Helper()
	r, err := directory.NewSSMResolver(context.Background(), nil,
		directory.WithSSMClient(client),
		directory.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)
	return r
}

func TestNamespacePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/Infra/HttpNamespace/", directory.NamespacePath("Infra"))
	assert.Equal(t, "/Infra/HttpNamespace/", directory.NamespacePath("/Infra/"))
}

func TestSSMResolver_ResolveNamespace(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	client.PublishNamespace("ElsaDataDevInfrastructureStack",
		"arn:aws:servicediscovery:ap-southeast-2:123456789012:namespace/ns-abc", "ns-abc", "elsa-data")

	ns, err := newResolver(t, client).ResolveNamespace(context.Background(), "ElsaDataDevInfrastructureStack")
	require.NoError(t, err)

	assert.Equal(t, directory.Namespace{
		ARN:  "arn:aws:servicediscovery:ap-southeast-2:123456789012:namespace/ns-abc",
		ID:   "ns-abc",
		Name: "elsa-data",
	}, ns)
	require.Len(t, client.Calls, 1)
	assert.Len(t, client.Calls[0], 3)
}

func TestSSMResolver_MissingParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*fakes.FakeSSMClient)
	}{
		{
			name:  "nothing published",
			setup: func(*fakes.FakeSSMClient) {},
		},
		{
			name: "id missing",
			setup: func(c *fakes.FakeSSMClient) {
				c.PublishNamespace("Infra", "arn", "ns-1", "name")
				delete(c.Parameters, "/Infra/HttpNamespace/namespaceId")
			},
		},
		{
			name: "empty value",
			setup: func(c *fakes.FakeSSMClient) {
				c.PublishNamespace("Infra", "arn", "", "name")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fakes.NewFakeSSMClient()
			tt.setup(client)

			_, err := newResolver(t, client).ResolveNamespace(context.Background(), "Infra")
			require.Error(t, err)
			assert.ErrorIs(t, err, directory.ErrNamespaceNotFound)

			var ue dserrors.UserError
			require.ErrorAs(t, err, &ue)
			assert.NotEmpty(t, ue.Suggestion)
		})
	}
}

func TestSSMResolver_APIError(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	client.Err = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"}

	_, err := newResolver(t, client).ResolveNamespace(context.Background(), "Infra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssm:GetParameters")

	var apiErr smithy.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestSSMResolver_EmptyReference(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeSSMClient()
	_, err := newResolver(t, client).ResolveNamespace(context.Background(), "")
	assert.ErrorIs(t, err, directory.ErrNamespaceNotFound)
	assert.Empty(t, client.Calls)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := directory.Static{"Infra": {ARN: "arn", ID: "ns-1", Name: "n"}}

	ns, err := s.ResolveNamespace(context.Background(), "Infra")
	require.NoError(t, err)
	assert.Equal(t, "ns-1", ns.ID)

	_, err = s.ResolveNamespace(context.Background(), "Other")
	assert.ErrorIs(t, err, directory.ErrNamespaceNotFound)
}
