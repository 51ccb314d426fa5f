package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/credential"
	"github.com/systmms/objsign/internal/discovery"
	"github.com/systmms/objsign/internal/stack"
)

// NewPlanCommand creates the plan command
func NewPlanCommand(cfg *config.Config) *cobra.Command {
	var (
		offline bool
		ns      namespaceFlags
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what the stack declares without deploying it",
		Long: `Evaluate objsign.yaml and list the declared resources, outputs and
service discovery attributes.

Unless --offline is given, the deployed stack is read to report whether the
access key will be created, kept or rotated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := assemble(ctx, cfg, &ns)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			displayPlan(out, st)

			if offline || st.RotationSerial() < 0 {
				return nil
			}

			cf, err := newCloudFormation(ctx, cfg)
			if err != nil {
				return err
			}
			rotation, previous, err := cf.Rotation(ctx, st)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\nAccess key: %s\n", describeRotation(rotation, previous, st.RotationSerial()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Do not read the deployed stack")
	ns.register(cmd)

	return cmd
}

func displayPlan(out io.Writer, st *stack.Stack) {
	_, _ = fmt.Fprintf(out, "Stack: %s\n", st.Name)
	_, _ = fmt.Fprintf(out, "Namespace: %s (%s)\n\n", st.Namespace.Name, st.Namespace.ID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RESOURCE\tTYPE\tDEPENDS ON\n")
	_, _ = fmt.Fprintf(w, "--------\t----\t----------\n")
	for _, id := range st.Template.Order {
		body := st.Template.Resources[id]
		deps := "-"
		if len(body.DependsOn) > 0 {
			deps = strings.Join(body.DependsOn, ", ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", id, body.Type, deps)
	}
	_ = w.Flush()

	if len(st.Outputs) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "OUTPUT\tVALUE\tEXPORT\n")
		_, _ = fmt.Fprintf(w, "------\t-----\t------\n")
		for _, o := range st.Outputs {
			export := "-"
			if o.ExportName != "" {
				export = o.ExportName
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", o.Key, displayValue(o.Value), export)
		}
		_ = w.Flush()
	}

	_, _ = fmt.Fprintf(out, "\nDiscovery: %s/%s/%s\n", st.Namespace.Name, discovery.ServiceName, discovery.InstanceID)
	names := st.Discovery.Names()
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "  (no attributes)")
	}
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %s = %s\n", name, st.Discovery.Attributes[name])
	}

	_, _ = fmt.Fprintf(out, "\nTotal resources: %d\n", len(st.Template.Order))
}

func describeRotation(r credential.Rotation, previous, next int) string {
	switch r {
	case credential.Initial:
		return fmt.Sprintf("will be created at serial %d", next)
	case credential.Rotated:
		return fmt.Sprintf("will be rotated (serial %d -> %d)", previous, next)
	default:
		return fmt.Sprintf("unchanged at serial %d", next)
	}
}
