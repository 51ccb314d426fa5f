package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/scope"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when --config is not given
const DefaultPath = "objsign.yaml"

//go:embed schema.json
var schemaJSON []byte

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
	Settings       Settings
}

// Definition represents the objsign.yaml structure. One definition is one
// signing stack.
type Definition struct {
	StackName                   string            `yaml:"stackName"`
	InfrastructureReferenceName string            `yaml:"infrastructureReferenceName"`
	IsDevelopment               bool              `yaml:"isDevelopment,omitempty"`
	Description                 string            `yaml:"description"`
	SecretsPrefix               string            `yaml:"secretsPrefix,omitempty"`
	Tags                        map[string]string `yaml:"tags,omitempty"`

	S3         *S3Block     `yaml:"s3,omitempty"`
	GCS        *RemoteBlock `yaml:"gcs,omitempty"`
	Cloudflare *RemoteBlock `yaml:"cloudflare,omitempty"`
}

// S3Block configures the provider whose identity objsign creates
type S3Block struct {
	RotationSerial  int               `yaml:"rotationSerial"`
	DataBucketPaths scope.BucketPaths `yaml:"dataBucketPaths,omitempty"`
}

// RemoteBlock configures a provider that manages its own grants. Only the
// presence of the block matters; BucketName is informational.
type RemoteBlock struct {
	BucketName string `yaml:"bucketName,omitempty"`
}

// ProviderCount is the number of provider blocks present
func (d *Definition) ProviderCount() int {
	n := 0
	if d.S3 != nil {
		n++
	}
	if d.GCS != nil {
		n++
	}
	if d.Cloudflare != nil {
		n++
	}
	return n
}

// SortedTags returns tag keys in lexical order
func (d *Definition) SortedTags() []string {
	keys := make([]string, 0, len(d.Tags))
	for k := range d.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads, validates and parses the configuration file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create objsign.yaml or pass --config with the path to your configuration",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	c.Logger.Debug("Loaded configuration for stack %s with %d provider(s)", def.StackName, def.ProviderCount())
	c.Definition = def
	return nil
}

// Parse validates raw YAML against the configuration schema and decodes it
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    err.Error(),
			Suggestion: "Each bucket may appear only once under dataBucketPaths",
		}
	}

	return &def, nil
}

// validate checks the decoded document against the embedded JSON schema
func validate(raw interface{}) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("configuration cannot be represented as JSON: %v", err),
			Suggestion: "Use string keys for every mapping, quoting bucket names that look like numbers",
		}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	first := errs[0]
	var messages []string
	for _, desc := range errs {
		messages = append(messages, desc.String())
	}

	return dserrors.ConfigError{
		Field:      first.Field(),
		Message:    strings.Join(messages, "; "),
		Suggestion: suggestionFor(first.Field()),
	}
}

func suggestionFor(field string) string {
	switch {
	case field == "(root)":
		return "stackName, infrastructureReferenceName and description are required"
	case field == "secretsPrefix":
		return "secretsPrefix becomes part of resource names and may only contain letters and digits"
	case field == "stackName":
		return "Stack names start with a letter and contain only letters, digits and hyphens"
	case strings.HasPrefix(field, "s3.rotationSerial"):
		return "rotationSerial is a non-negative integer; increment it to rotate the access key"
	case strings.HasPrefix(field, "s3.dataBucketPaths"):
		return "dataBucketPaths maps each bucket name to a list of key patterns such as FLAGSHIP_A/*"
	default:
		return "See the example objsign.yaml for the expected structure"
	}
}
