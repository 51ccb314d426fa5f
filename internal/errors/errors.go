package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UserError represents an error that should be shown to the operator with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context.
// It is raised before any resource is declared.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// IsConfigError reports whether err is or wraps a ConfigError
func IsConfigError(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}

// APIErrorCode returns the service error code carried by an AWS SDK error,
// or the gRPC status code name for a Google Cloud error. Empty when unknown.
func APIErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return st.Code().String()
	}
	return ""
}

// ProviderError enhances cloud API errors with context
func ProviderError(service string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", service, operation),
		Details:    err.Error(),
		Suggestion: getProviderSuggestion(service, err),
		Err:        err,
	}
}

// getProviderSuggestion returns helpful suggestions based on service and error
func getProviderSuggestion(service string, err error) string {
	code := APIErrorCode(err)
	errStr := err.Error()

	switch code {
	case "AccessDenied", "AccessDeniedException", "PermissionDenied":
		return fmt.Sprintf("Check that the deploying principal is allowed to call %s", serviceActions(service))
	case "ExpiredToken", "ExpiredTokenException", "InvalidClientTokenId", "Unauthenticated":
		return "Refresh your cloud credentials (e.g. 'aws sso login' or set AWS_PROFILE)"
	case "ThrottlingException", "Throttling", "ResourceExhausted":
		return "Request was throttled. Wait a moment and re-run; evaluation is idempotent"
	case "ParameterNotFound":
		return "Verify the infrastructure stack is deployed and exported its namespace parameters"
	case "ResourceNotFoundException", "NotFound":
		if service == "secretsmanager" {
			return "Deploy the stack first so the placeholder secret exists"
		}
		return "Verify the resource name and region"
	}

	switch service {
	case "cloudformation":
		if strings.Contains(errStr, "does not exist") {
			return "The stack has not been deployed yet; run 'objsign deploy' to create it"
		}
		if strings.Contains(errStr, "Requires capabilities") {
			return "The template declares IAM resources; CAPABILITY_IAM must be acknowledged"
		}
	case "secretsmanager":
		if strings.Contains(errStr, "can't find") {
			return "Deploy the stack first so the placeholder secret exists"
		}
	}

	if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "no EC2 IMDS role found") {
		return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
	}
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and endpoint configuration"
	}

	return ""
}

func serviceActions(service string) string {
	switch service {
	case "ssm":
		return "ssm:GetParameters"
	case "cloudformation":
		return "cloudformation:DescribeStacks, CreateStack and UpdateStack"
	case "secretsmanager":
		return "secretsmanager:PutSecretValue"
	case "sts":
		return "sts:GetCallerIdentity"
	case "gcp-secretmanager":
		return "secretmanager.versions.access"
	default:
		return service
	}
}
