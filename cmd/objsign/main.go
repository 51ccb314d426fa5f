package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/objsign/cmd/objsign/commands"
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "objsign",
		Short: "Object Signing - Provision credentials for presigning bucket URLs",
		Long: `objsign declares the identities, access keys and secrets a service needs
to presign object URLs in S3, GCS and Cloudflare R2, and publishes where to
find them through service discovery.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive

			settings, err := config.LoadSettings(nil)
			if err != nil {
				return err
			}
			cfg.Settings = settings
			if settings.AccessKeyID != "" {
				cfg.Logger.Debug("Using static AWS credentials %v", logging.Secret(settings.AccessKeyID))
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewSynthCommand(cfg),
		commands.NewPlanCommand(cfg),
		commands.NewDeployCommand(cfg),
		commands.NewCheckCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewSecretCommand(cfg),
	)

	return rootCmd.Execute()
}
