package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/credential"
	"github.com/systmms/objsign/internal/engine"
	"github.com/systmms/objsign/internal/metrics"
	"github.com/systmms/objsign/internal/providers"
)

// NewDeployCommand creates the deploy command
func NewDeployCommand(cfg *config.Config) *cobra.Command {
	var (
		wait bool
		ns   namespaceFlags
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create or update the stack with CloudFormation",
		Long: `Evaluate objsign.yaml and submit the template to CloudFormation.

The rotation serial of the deployed stack is compared first: a lower serial
is refused, a higher one replaces the access key. When
OBJSIGN_PUSHGATEWAY_URL is set, deployment metrics are pushed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := assemble(ctx, cfg, &ns)
			if err != nil {
				return err
			}

			var opts []engine.CloudFormationOption
			if wait {
				opts = append(opts, engine.WithWait(cfg.Settings.WaitTimeout))
			}
			cf, err := newCloudFormation(ctx, cfg, opts...)
			if err != nil {
				return err
			}

			rotation, previous, err := cf.Rotation(ctx, st)
			if err != nil {
				return err
			}
			if rotation == credential.Rotated {
				cfg.Logger.Warn("Rotating access key from serial %d to %d; the previous key is deleted once the update completes",
					previous, st.RotationSerial())
			}

			recorder := metrics.NewRecorder()
			recorder.ObserveStack(st)

			start := time.Now()
			err = cf.Submit(ctx, st)
			recorder.ObserveDeployment(st.Name, rotation.String(), time.Since(start), err)

			if url := cfg.Settings.PushgatewayURL; url != "" {
				if pushErr := recorder.Push(ctx, url, st.Name); pushErr != nil {
					cfg.Logger.Warn("%v", pushErr)
				} else {
					cfg.Logger.Debug("Pushed deployment metrics to %s", url)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			registry := providers.NewRegistry()
			for _, sec := range st.Providers.Secrets {
				note := ""
				if d, ok := registry.ByTag(sec.Tag); ok && sec.Placeholder {
					note = fmt.Sprintf(" (placeholder, populate with 'objsign secret put %s')", d.Key)
				}
				_, _ = fmt.Fprintf(out, "%s%s\n", sec.Name, note)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for CloudFormation to finish (bounded by OBJSIGN_WAIT_TIMEOUT)")
	ns.register(cmd)

	return cmd
}
