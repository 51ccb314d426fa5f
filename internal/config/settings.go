package config

import (
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/caarlos0/env/v11"
)

// Settings are the environment-provided knobs shared by every command
type Settings struct {
	Region         string        `env:"OBJSIGN_REGION"`
	Profile        string        `env:"OBJSIGN_PROFILE"`
	Endpoint       string        `env:"OBJSIGN_ENDPOINT"`
	PushgatewayURL string        `env:"OBJSIGN_PUSHGATEWAY_URL"`
	GCPProject     string        `env:"GOOGLE_CLOUD_PROJECT"`
	WaitTimeout    time.Duration `env:"OBJSIGN_WAIT_TIMEOUT" envDefault:"30m"`

	// Static credentials, for LocalStack and similar emulators
	AccessKeyID     string `env:"OBJSIGN_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"OBJSIGN_SECRET_ACCESS_KEY"`
}

// LoadSettings parses settings from environ, or from the process
// environment when environ is nil
func LoadSettings(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment settings: %w", err)
	}
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		return Settings{}, fmt.Errorf("OBJSIGN_ACCESS_KEY_ID and OBJSIGN_SECRET_ACCESS_KEY must be set together")
	}
	return s, nil
}

// AWSOptions translates the settings into AWS config load options. Unset
// settings defer to the SDK's default chain.
func (s Settings) AWSOptions() []func(*awsconfig.LoadOptions) error {
	var opts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	if s.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(s.Endpoint))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}
	return opts
}
