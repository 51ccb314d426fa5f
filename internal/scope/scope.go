// Package scope derives the minimal read-only permission statements for an
// object signing identity from a bucket to key-pattern mapping.
package scope

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Actions granted by derived statements
const (
	ActionGetBucketLocation = "s3:GetBucketLocation"
	ActionGetObject         = "s3:GetObject"
	ActionGetObjectTagging  = "s3:GetObjectTagging"
)

// Statement ids used when statements are grouped into a policy document
const (
	SidReadBucketLevel = "ReadBucketLevel"
	SidReadObjectLevel = "ReadObjectLevel"
)

// Scheme prefixes a bucket name to form a resource identifier
type Scheme string

const (
	// StorageScheme is the provider-neutral form, storage://bucket/key
	StorageScheme Scheme = "storage://"
	// S3Scheme renders IAM resource ARNs, arn:aws:s3:::bucket/key
	S3Scheme Scheme = "arn:aws:s3:::"
)

// Bucket returns the bucket-level resource identifier
func (s Scheme) Bucket(bucket string) string {
	return string(s) + bucket
}

// Object returns the object-level resource identifier for a key pattern
func (s Scheme) Object(bucket, pattern string) string {
	return string(s) + bucket + "/" + pattern
}

// BucketPath lists the key patterns readable within one bucket.
// An empty Patterns slice grants bucket location only.
type BucketPath struct {
	Bucket   string   `json:"bucket" yaml:"bucket"`
	Patterns []string `json:"patterns" yaml:"patterns"`
}

// BucketPaths is an ordered bucket to patterns mapping. Order is kept so
// that derived statements are stable across evaluations.
type BucketPaths []BucketPath

// PatternCount is the number of (bucket, pattern) pairs
func (bp BucketPaths) PatternCount() int {
	n := 0
	for _, b := range bp {
		n += len(b.Patterns)
	}
	return n
}

// Buckets returns the bucket names in order
func (bp BucketPaths) Buckets() []string {
	names := make([]string, 0, len(bp))
	for _, b := range bp {
		names = append(names, b.Bucket)
	}
	return names
}

// UnmarshalYAML decodes a YAML mapping while keeping document order.
// Duplicate bucket keys are rejected.
func (bp *BucketPaths) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: dataBucketPaths must be a mapping of bucket to key patterns", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	out := make(BucketPaths, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var bucket string
		if err := keyNode.Decode(&bucket); err != nil {
			return fmt.Errorf("line %d: bucket name: %w", keyNode.Line, err)
		}
		if seen[bucket] {
			return fmt.Errorf("line %d: bucket %q listed more than once", keyNode.Line, bucket)
		}
		seen[bucket] = true

		var patterns []string
		if valueNode.Kind != yaml.ScalarNode || valueNode.Tag != "!!null" {
			if err := valueNode.Decode(&patterns); err != nil {
				return fmt.Errorf("line %d: patterns for bucket %q: %w", valueNode.Line, bucket, err)
			}
		}
		if patterns == nil {
			patterns = []string{}
		}
		out = append(out, BucketPath{Bucket: bucket, Patterns: patterns})
	}

	*bp = out
	return nil
}

// MarshalYAML encodes the paths back to a mapping in order
func (bp BucketPaths) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, b := range bp {
		value := &yaml.Node{}
		if err := value.Encode(b.Patterns); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: b.Bucket},
			value,
		)
	}
	return node, nil
}

// Statement is one allow rule: a single resource and the actions on it
type Statement struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// Scope is the full derived access for one identity
type Scope struct {
	Bucket []Statement `json:"bucket"`
	Object []Statement `json:"object"`
}

// DeriveBucketStatements returns one bucket-level statement per bucket, in
// input order
func DeriveBucketStatements(paths BucketPaths, scheme Scheme) []Statement {
	out := make([]Statement, 0, len(paths))
	for _, b := range paths {
		out = append(out, Statement{
			Resource: scheme.Bucket(b.Bucket),
			Actions:  []string{ActionGetBucketLocation},
		})
	}
	return out
}

// DeriveObjectStatements returns one object-level statement per bucket and
// pattern pair, in input order. Patterns are not checked; "*" grants the
// whole bucket.
func DeriveObjectStatements(paths BucketPaths, scheme Scheme) []Statement {
	out := make([]Statement, 0, paths.PatternCount())
	for _, b := range paths {
		for _, p := range b.Patterns {
			out = append(out, Statement{
				Resource: scheme.Object(b.Bucket, p),
				Actions:  []string{ActionGetObject, ActionGetObjectTagging},
			})
		}
	}
	return out
}

// Derive computes both statement lists. An empty mapping yields an empty
// scope, i.e. an identity with no access at all.
func Derive(paths BucketPaths, scheme Scheme) Scope {
	return Scope{
		Bucket: DeriveBucketStatements(paths, scheme),
		Object: DeriveObjectStatements(paths, scheme),
	}
}

// Empty reports whether the scope grants nothing
func (s Scope) Empty() bool {
	return len(s.Bucket) == 0 && len(s.Object) == 0
}

// Len is the total number of statements
func (s Scope) Len() int {
	return len(s.Bucket) + len(s.Object)
}
