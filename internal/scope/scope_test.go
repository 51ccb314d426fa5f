package scope_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/objsign/internal/scope"
	"gopkg.in/yaml.v3"
)

func twoByTwo() scope.BucketPaths {
	return scope.BucketPaths{
		{Bucket: "bucket-a", Patterns: []string{"FLAGSHIP_A/*", "Mito/*manifest.txt"}},
		{Bucket: "bucket-b", Patterns: []string{"Cardiac2022/*", "*"}},
	}
}

func TestDeriveSingleBucket(t *testing.T) {
	t.Parallel()

	paths := scope.BucketPaths{{Bucket: "bucket-a", Patterns: []string{"FLAGSHIP_A/*"}}}

	got := scope.Derive(paths, scope.StorageScheme)

	assert.Equal(t, []scope.Statement{
		{Resource: "storage://bucket-a", Actions: []string{"s3:GetBucketLocation"}},
	}, got.Bucket)
	assert.Equal(t, []scope.Statement{
		{Resource: "storage://bucket-a/FLAGSHIP_A/*", Actions: []string{"s3:GetObject", "s3:GetObjectTagging"}},
	}, got.Object)
	assert.Equal(t, 2, got.Len())
}

func TestDeriveTwoBucketsTwoPatterns(t *testing.T) {
	t.Parallel()

	got := scope.Derive(twoByTwo(), scope.StorageScheme)

	require.Len(t, got.Bucket, 2)
	require.Len(t, got.Object, 4)

	want := []string{
		"storage://bucket-a/FLAGSHIP_A/*",
		"storage://bucket-a/Mito/*manifest.txt",
		"storage://bucket-b/Cardiac2022/*",
		"storage://bucket-b/*",
	}
	counts := map[string]int{}
	for i, st := range got.Object {
		assert.Equal(t, want[i], st.Resource)
		counts[st.Resource]++
	}
	for _, r := range want {
		assert.Equal(t, 1, counts[r], "resource %s", r)
	}
}

func TestDeriveCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paths scope.BucketPaths
	}{
		{name: "empty", paths: scope.BucketPaths{}},
		{name: "nil", paths: nil},
		{name: "bucket with no patterns", paths: scope.BucketPaths{{Bucket: "only-location", Patterns: []string{}}}},
		{name: "two by two", paths: twoByTwo()},
		{name: "uneven", paths: scope.BucketPaths{
			{Bucket: "a", Patterns: []string{"1", "2", "3"}},
			{Bucket: "b"},
			{Bucket: "c", Patterns: []string{"x"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := scope.DeriveObjectStatements(tt.paths, scope.StorageScheme)
			buckets := scope.DeriveBucketStatements(tt.paths, scope.StorageScheme)

			assert.Len(t, buckets, len(tt.paths))
			assert.Len(t, objects, tt.paths.PatternCount())
		})
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	t.Parallel()

	paths := twoByTwo()
	first := scope.DeriveObjectStatements(paths, scope.S3Scheme)
	second := scope.DeriveObjectStatements(paths, scope.S3Scheme)

	assert.Equal(t, first, second)
}

func TestDeriveEmptyIsLockedDown(t *testing.T) {
	t.Parallel()

	got := scope.Derive(scope.BucketPaths{}, scope.S3Scheme)

	assert.Empty(t, got.Bucket)
	assert.Empty(t, got.Object)
	assert.True(t, got.Empty())
	assert.Empty(t, got.Document().Statement)
}

func TestS3SchemeRendersARNs(t *testing.T) {
	t.Parallel()

	got := scope.Derive(scope.BucketPaths{{Bucket: "elsa-test-data", Patterns: []string{"FLAGSHIP_A/*"}}}, scope.S3Scheme)

	assert.Equal(t, "arn:aws:s3:::elsa-test-data", got.Bucket[0].Resource)
	assert.Equal(t, "arn:aws:s3:::elsa-test-data/FLAGSHIP_A/*", got.Object[0].Resource)
}

func TestDocumentGroupsStatements(t *testing.T) {
	t.Parallel()

	doc := scope.Derive(twoByTwo(), scope.S3Scheme).Document()

	require.Len(t, doc.Statement, 2)
	assert.Equal(t, "2012-10-17", doc.Version)

	bucketLevel := doc.Statement[0]
	assert.Equal(t, "ReadBucketLevel", bucketLevel.Sid)
	assert.Equal(t, "Allow", bucketLevel.Effect)
	assert.Equal(t, []string{"s3:GetBucketLocation"}, bucketLevel.Action)
	assert.Equal(t, []string{"arn:aws:s3:::bucket-a", "arn:aws:s3:::bucket-b"}, bucketLevel.Resource)

	objectLevel := doc.Statement[1]
	assert.Equal(t, "ReadObjectLevel", objectLevel.Sid)
	assert.Equal(t, []string{"s3:GetObject", "s3:GetObjectTagging"}, objectLevel.Action)
	assert.Len(t, objectLevel.Resource, 4)

	raw, err := doc.JSON()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2012-10-17", decoded["Version"])
}

func TestDocumentBucketOnly(t *testing.T) {
	t.Parallel()

	doc := scope.Derive(scope.BucketPaths{{Bucket: "a", Patterns: []string{}}}, scope.S3Scheme).Document()

	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "ReadBucketLevel", doc.Statement[0].Sid)
}

func TestBucketPathsYAMLKeepsOrder(t *testing.T) {
	t.Parallel()

	src := `
zeta-bucket: ["z/*"]
alpha-bucket:
  - "a/*"
  - "b/*"
empty-bucket: []
null-bucket:
`
	var paths scope.BucketPaths
	require.NoError(t, yaml.Unmarshal([]byte(src), &paths))

	assert.Equal(t, []string{"zeta-bucket", "alpha-bucket", "empty-bucket", "null-bucket"}, paths.Buckets())
	assert.Equal(t, []string{"a/*", "b/*"}, paths[1].Patterns)
	assert.Equal(t, []string{}, paths[2].Patterns)
	assert.Equal(t, []string{}, paths[3].Patterns)

	out, err := yaml.Marshal(paths)
	require.NoError(t, err)
	var again scope.BucketPaths
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, paths, again)
}

func TestBucketPathsYAMLRejectsDuplicates(t *testing.T) {
	t.Parallel()

	var paths scope.BucketPaths
	err := yaml.Unmarshal([]byte("a: [\"x\"]\na: [\"y\"]\n"), &paths)
	// yaml.v3 rejects duplicate mapping keys itself; either error is fine
	require.Error(t, err)
}

func TestBucketPathsYAMLRejectsSequence(t *testing.T) {
	t.Parallel()

	var paths scope.BucketPaths
	err := yaml.Unmarshal([]byte("- a\n- b\n"), &paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestGrants(t *testing.T) {
	t.Parallel()

	paths := scope.BucketPaths{
		{Bucket: "elsa-test-data", Patterns: []string{"FLAGSHIP_A/*", "Mito/*manifest.txt", "exact/file.bam", "v?/data"}},
		{Bucket: "whole", Patterns: []string{"*"}},
		{Bucket: "locked", Patterns: []string{}},
	}

	tests := []struct {
		bucket  string
		key     string
		allowed bool
		pattern string
	}{
		{"elsa-test-data", "FLAGSHIP_A/sample/1.bam", true, "FLAGSHIP_A/*"},
		{"elsa-test-data", "FLAGSHIP_B/sample/1.bam", false, ""},
		{"elsa-test-data", "Mito/deep/path/run1manifest.txt", true, "Mito/*manifest.txt"},
		{"elsa-test-data", "Mito/run1manifest.csv", false, ""},
		{"elsa-test-data", "exact/file.bam", true, "exact/file.bam"},
		{"elsa-test-data", "v1/data", true, "v?/data"},
		{"elsa-test-data", "v10/data", false, ""},
		{"whole", "anything/at/all[1]{x}", true, "*"},
		{"locked", "anything", false, ""},
		{"unknown", "FLAGSHIP_A/x", false, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.bucket, tt.key), func(t *testing.T) {
			pattern, ok := paths.Grants(tt.bucket, tt.key)
			assert.Equal(t, tt.allowed, ok)
			assert.Equal(t, tt.pattern, pattern)
		})
	}
}

func TestGrantsLiteralBrackets(t *testing.T) {
	t.Parallel()

	paths := scope.BucketPaths{{Bucket: "b", Patterns: []string{"run[1]/*"}}}

	_, ok := paths.Grants("b", "run[1]/x")
	assert.True(t, ok)
	_, ok = paths.Grants("b", "run1/x")
	assert.False(t, ok)
}
