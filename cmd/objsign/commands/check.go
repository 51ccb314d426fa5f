package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/objsign/internal/config"
)

// NewCheckCommand creates the check command
func NewCheckCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <bucket> <key>",
		Short: "Check whether the S3 signing identity may read an object",
		Long: `Match an object key against the configured dataBucketPaths the way the
declared IAM policy will. Exits non-zero when the key is not readable.`,
		Example: `  objsign check my-data-bucket FLAGSHIP_A/sample.bam
  objsign check s3://my-data-bucket/FLAGSHIP_A/sample.bam`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key, err := objectArgs(args)
			if err != nil {
				return err
			}

			if err := cfg.Load(); err != nil {
				return err
			}
			if cfg.Definition.S3 == nil {
				return fmt.Errorf("no s3 block in %s; S3 access is not managed by this stack", cfg.Path)
			}

			paths := cfg.Definition.S3.DataBucketPaths
			if _, ok := paths.Lookup(bucket); !ok {
				return fmt.Errorf("bucket %s is not listed under s3.dataBucketPaths", bucket)
			}

			pattern, ok := paths.Grants(bucket, key)
			if !ok {
				return fmt.Errorf("s3://%s/%s is not readable by the signing identity", bucket, key)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s is readable (pattern %q)\n", bucket, key, pattern)
			return nil
		},
	}

	return cmd
}

// objectArgs accepts either "bucket key" or a single s3:// URL
func objectArgs(args []string) (bucket, key string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	rest, found := strings.CutPrefix(args[0], "s3://")
	if !found {
		return "", "", fmt.Errorf("expected <bucket> <key> or s3://bucket/key, got %q", args[0])
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key, got %q", args[0])
	}
	return bucket, key, nil
}
