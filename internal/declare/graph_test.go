package declare_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/objsign/internal/declare"
	"gopkg.in/yaml.v3"
)

func declareUserAndKey(t *testing.T, g *declare.Graph) (declare.Handle, declare.Handle) {
	t.Helper()

	user, err := g.Declare(declare.Resource{LogicalID: "User", Type: declare.TypeIAMUser})
	require.NoError(t, err)

	key, err := g.Declare(declare.Resource{
		LogicalID: "AccessKey",
		Type:      declare.TypeIAMAccessKey,
		Properties: map[string]interface{}{
			"UserName": user.Ref(),
			"Serial":   1,
			"Status":   "Active",
		},
	})
	require.NoError(t, err)
	return user, key
}

func TestDeclareInfersDependencies(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, key := declareUserAndKey(t, g)

	_, err := g.Declare(declare.Resource{
		LogicalID: "Secret",
		Type:      declare.TypeSecret,
		Properties: map[string]interface{}{
			"SecretString": declare.JSONObject(
				declare.Field{Key: "accessKeyId", Value: key.Ref()},
				declare.Field{Key: "secretAccessKey", Value: key.Attr("SecretAccessKey")},
			),
		},
	})
	require.NoError(t, err)

	deps, err := g.Dependencies("Secret")
	require.NoError(t, err)
	assert.Equal(t, []string{"AccessKey"}, deps)

	deps, err = g.Dependencies("AccessKey")
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, deps)
	assert.Equal(t, 3, g.Len())
}

func TestDeclareRejectsDuplicates(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, err := g.Declare(declare.Resource{LogicalID: "User", Type: declare.TypeIAMUser})
	require.NoError(t, err)

	_, err = g.Declare(declare.Resource{LogicalID: "User", Type: declare.TypeIAMUser})
	require.Error(t, err)
	assert.ErrorIs(t, err, declare.ErrDuplicateResource)
}

func TestDeclareRejectsUndeclaredReference(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, err := g.Declare(declare.Resource{
		LogicalID:  "AccessKey",
		Type:       declare.TypeIAMAccessKey,
		Properties: map[string]interface{}{"UserName": declare.Ref{LogicalID: "Missing"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared resource Missing")
}

func TestDeclareValidatesLogicalID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "dash", id: "Elsa-Data"},
		{name: "space", id: "My Secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := declare.New().Declare(declare.Resource{LogicalID: tt.id, Type: declare.TypeSecret})
			assert.Error(t, err)
		})
	}
}

func TestResourcesAreDependencyOrderedAndStable(t *testing.T) {
	t.Parallel()

	build := func() []string {
		g := declare.New()
		_, err := g.Declare(declare.Resource{LogicalID: "Service", Type: declare.TypeDiscoveryService})
		require.NoError(t, err)
		declareUserAndKey(t, g)
		_, err = g.Declare(declare.Resource{
			LogicalID:  "Instance",
			Type:       declare.TypeDiscoveryInstance,
			Properties: map[string]interface{}{"ServiceId": declare.Ref{LogicalID: "Service"}},
			DependsOn:  []string{"AccessKey"},
		})
		require.NoError(t, err)

		resources, err := g.Resources()
		require.NoError(t, err)
		ids := make([]string, 0, len(resources))
		for _, r := range resources {
			ids = append(ids, r.LogicalID)
		}
		return ids
	}

	first := build()
	assert.Equal(t, []string{"Service", "User", "AccessKey", "Instance"}, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestOutputs(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, key := declareUserAndKey(t, g)

	require.NoError(t, g.Output(declare.Output{Key: "AccessKeyId", Value: key.Ref()}))
	err := g.Output(declare.Output{Key: "AccessKeyId", Value: "x"})
	assert.ErrorIs(t, err, declare.ErrDuplicateOutput)

	err = g.Output(declare.Output{Key: "Dangling", Value: declare.Ref{LogicalID: "Nope"}})
	assert.Error(t, err)

	assert.Len(t, g.Outputs(), 1)
}

func TestJSONObject(t *testing.T) {
	t.Parallel()

	t.Run("literal only renders a plain string", func(t *testing.T) {
		v := declare.JSONObject(
			declare.Field{Key: "accessKeyId", Value: "TO BE REPLACED"},
			declare.Field{Key: "secretAccessKey", Value: `quote"d`},
		)
		s, ok := v.(string)
		require.True(t, ok)
		assert.Equal(t, `{"accessKeyId":"TO BE REPLACED","secretAccessKey":"quote\"d"}`, s)

		var decoded map[string]string
		require.NoError(t, json.Unmarshal([]byte(s), &decoded))
		assert.Equal(t, `quote"d`, decoded["secretAccessKey"])
	})

	t.Run("references become a join", func(t *testing.T) {
		v := declare.JSONObject(
			declare.Field{Key: "accessKeyId", Value: declare.Ref{LogicalID: "AccessKey"}},
			declare.Field{Key: "secretAccessKey", Value: declare.GetAtt{LogicalID: "AccessKey", Attribute: "SecretAccessKey"}},
		)
		join, ok := v.(declare.Join)
		require.True(t, ok)
		assert.Equal(t, []interface{}{
			`{"accessKeyId":"`,
			declare.Ref{LogicalID: "AccessKey"},
			`","secretAccessKey":"`,
			declare.GetAtt{LogicalID: "AccessKey", Attribute: "SecretAccessKey"},
			`"}`,
		}, join.Values)
	})
}

func TestTemplateRendering(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, key := declareUserAndKey(t, g)
	require.NoError(t, g.Output(declare.Output{Key: "KeyId", Value: key.Ref(), ExportName: "Exported"}))

	tmpl, err := g.Template("object signing")
	require.NoError(t, err)
	assert.Equal(t, []string{"User", "AccessKey"}, tmpl.Order)

	raw, err := tmpl.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2010-09-09", decoded["AWSTemplateFormatVersion"])
	assert.Equal(t, "object signing", decoded["Description"])

	resources := decoded["Resources"].(map[string]interface{})
	accessKey := resources["AccessKey"].(map[string]interface{})
	props := accessKey["Properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"Ref": "User"}, props["UserName"])

	outputs := decoded["Outputs"].(map[string]interface{})
	keyID := outputs["KeyId"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"Name": "Exported"}, keyID["Export"])

	again, err := g.Template("object signing")
	require.NoError(t, err)
	rawAgain, err := again.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(rawAgain))
}

func TestTemplateYAML(t *testing.T) {
	t.Parallel()

	g := declare.New()
	_, key := declareUserAndKey(t, g)
	_, err := g.Declare(declare.Resource{
		LogicalID: "Param",
		Type:      declare.TypeSSMParameter,
		Properties: map[string]interface{}{
			"Value": key.Attr("SecretAccessKey"),
		},
	})
	require.NoError(t, err)

	tmpl, err := g.Template("")
	require.NoError(t, err)
	raw, err := tmpl.YAML()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	resources := decoded["Resources"].(map[string]interface{})
	param := resources["Param"].(map[string]interface{})
	props := param["Properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"Fn::GetAtt": []interface{}{"AccessKey", "SecretAccessKey"}}, props["Value"])
	_, hasDescription := decoded["Description"]
	assert.False(t, hasDescription)
}
