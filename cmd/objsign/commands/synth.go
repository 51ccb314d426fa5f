package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/engine"
)

// NewSynthCommand creates the synth command
func NewSynthCommand(cfg *config.Config) *cobra.Command {
	var (
		format string
		outDir string
		ns     namespaceFlags
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Print the CloudFormation template for the stack",
		Long: `Evaluate objsign.yaml and print the resulting CloudFormation template.

Nothing is deployed. Pass --out to write <stackName>.template.json into a
directory, for example to hand the template to another pipeline.`,
		Example: `  # Print the template as JSON
  objsign synth

  # Synthesize without SSM access
  objsign synth --namespace-id ns-abc123 --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}

			st, err := assemble(cmd.Context(), cfg, &ns)
			if err != nil {
				return err
			}

			if outDir != "" {
				return engine.File{Dir: outDir, Logger: cfg.Logger}.Submit(cmd.Context(), st)
			}

			var body []byte
			if format == "yaml" {
				body, err = st.Template.YAML()
			} else {
				body, err = st.Template.JSON()
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Template format (json, yaml)")
	cmd.Flags().StringVar(&outDir, "out", "", "Write the template into this directory instead of stdout")
	ns.register(cmd)

	return cmd
}
