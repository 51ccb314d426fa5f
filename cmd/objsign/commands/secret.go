package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/populate"
	"github.com/systmms/objsign/internal/providers"
)

// NewSecretCommand creates the secret command group
func NewSecretCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage signing secrets",
	}

	cmd.AddCommand(newSecretPutCommand(cfg))
	return cmd
}

func newSecretPutCommand(cfg *config.Config) *cobra.Command {
	var (
		fromFile       string
		fromGCP        string
		gcpProject     string
		gcpCredentials string
	)

	cmd := &cobra.Command{
		Use:   "put <provider>",
		Short: "Replace a placeholder secret with real credentials",
		Long: `Write operator-supplied credentials into the secret the stack declared
for a provider objsign cannot create identities for.

Providers: ` + strings.Join(providers.NewRegistry().Keys(), ", ") + `. The s3 secret is
written by the stack itself and is refused. The material is validated before
it is written and is held in locked memory until then.`,
		Example: `  # Cloudflare R2 token from stdin
  objsign secret put cloudflare < r2-token.json

  # GCS service account key copied from Google Secret Manager
  objsign secret put gcs --from-gcp signer-key@latest --gcp-project my-project`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := cfg.Load(); err != nil {
				return err
			}

			var src populate.Source = populate.FileSource{Path: fromFile, Stdin: cmd.InOrStdin()}
			if fromGCP != "" {
				project := gcpProject
				if project == "" {
					project = cfg.Settings.GCPProject
				}
				client, closeClient, err := newGCPAccessor(ctx, gcpCredentials)
				if err != nil {
					return err
				}
				defer func() { _ = closeClient() }()

				secret, version := populate.ParseGCPReference(fromGCP)
				src = populate.GCPSource{Client: client, Project: project, Secret: secret, Version: version}
			}

			p, err := newPopulator(ctx, cfg, cfg.Definition.SecretsPrefix)
			if err != nil {
				return err
			}
			result, err := p.Put(ctx, args[0], src)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote version %s of %s\n", result.VersionID, result.SecretName)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "-", "Read the credential from this file (- for stdin)")
	cmd.Flags().StringVar(&fromGCP, "from-gcp", "", "Copy the credential from Google Secret Manager (secret[@version])")
	cmd.Flags().StringVar(&gcpProject, "gcp-project", "", "Google Cloud project of --from-gcp (default $GOOGLE_CLOUD_PROJECT)")
	cmd.Flags().StringVar(&gcpCredentials, "gcp-credentials", "", "Service account key file for --from-gcp (default application credentials)")
	cmd.MarkFlagsMutuallyExclusive("from-file", "from-gcp")

	return cmd
}
