package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/credential"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
)

// CheckResult is the outcome of one doctor check
type CheckResult struct {
	Name    string
	Status  string // ok, error, skipped
	Message string
	Err     error
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and cloud access",
		Long: `Check that objsign.yaml is valid, AWS credentials work, the
infrastructure namespace can be found and the deployed stack is healthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg.Logger.Info("Checking objsign configuration...")

			results := runChecks(ctx, cfg)
			out := cmd.OutOrStdout()
			displayCheckResults(out, results, verbose, []string{cfg.Settings.AccessKeyID, cfg.Settings.SecretAccessKey})

			passed := 0
			for _, r := range results {
				if r.Status != "error" {
					passed++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks passed\n", passed, len(results))
			if passed < len(results) {
				return fmt.Errorf("some checks failed")
			}

			cfg.Logger.Info("All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func runChecks(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	if err := cfg.Load(); err != nil {
		results = append(results, failed("configuration", err))
	} else {
		results = append(results, CheckResult{
			Name:    "configuration",
			Status:  "ok",
			Message: fmt.Sprintf("%s (%d provider(s))", cfg.Definition.StackName, cfg.Definition.ProviderCount()),
		})
	}

	results = append(results, checkCallerIdentity(ctx, cfg))

	if cfg.Definition == nil {
		return append(results,
			CheckResult{Name: "namespace", Status: "skipped", Message: "configuration not loaded"},
			CheckResult{Name: "stack", Status: "skipped", Message: "configuration not loaded"},
		)
	}

	results = append(results, checkNamespace(ctx, cfg))
	results = append(results, checkStack(ctx, cfg))
	return results
}

func checkCallerIdentity(ctx context.Context, cfg *config.Config) CheckResult {
	client, err := newSTSClient(ctx, cfg)
	if err != nil {
		return failed("aws credentials", err)
	}
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return failed("aws credentials", dserrors.ProviderError("sts", "get caller identity", err))
	}
	return CheckResult{Name: "aws credentials", Status: "ok", Message: aws.ToString(out.Arn)}
}

func checkNamespace(ctx context.Context, cfg *config.Config) CheckResult {
	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		return failed("namespace", err)
	}
	ns, err := resolver.ResolveNamespace(ctx, cfg.Definition.InfrastructureReferenceName)
	if err != nil {
		return failed("namespace", err)
	}
	return CheckResult{Name: "namespace", Status: "ok", Message: fmt.Sprintf("%s (%s)", ns.Name, ns.ID)}
}

func checkStack(ctx context.Context, cfg *config.Config) CheckResult {
	cf, err := newCloudFormation(ctx, cfg)
	if err != nil {
		return failed("stack", err)
	}
	name := cfg.Definition.StackName
	status, err := cf.Status(ctx, name)
	if err != nil {
		return failed("stack", err)
	}
	if status == "" {
		return CheckResult{Name: "stack", Status: "ok", Message: name + " not deployed yet"}
	}

	msg := fmt.Sprintf("%s %s", name, status)
	if cfg.Definition.S3 != nil {
		previous, err := cf.PreviousSerial(ctx, name)
		if err != nil {
			return failed("stack", err)
		}
		next := cfg.Definition.S3.RotationSerial
		rotation, err := credential.CheckSerial(previous, next)
		if err != nil {
			return failed("stack", err)
		}
		msg += ", access key " + describeRotation(rotation, previous, next)
	}
	return CheckResult{Name: "stack", Status: "ok", Message: msg}
}

func failed(name string, err error) CheckResult {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return CheckResult{Name: name, Status: "error", Message: line, Err: err}
}

// displayCheckResults shows results in a formatted table with secrets
// redacted from messages
func displayCheckResults(out io.Writer, results []CheckResult, verbose bool, secrets []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, r := range results {
		status := r.Status
		switch r.Status {
		case "ok":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, logging.Redact(r.Message, secrets))
	}
	_ = w.Flush()

	if !verbose {
		return
	}
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s:\n  %s\n", r.Name, logging.Redact(r.Err.Error(), secrets))
	}
}
