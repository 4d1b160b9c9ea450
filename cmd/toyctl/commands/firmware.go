package commands

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/snugbit/toygateway/pkg/cli"
	"github.com/snugbit/toygateway/pkg/device"
	"github.com/snugbit/toygateway/pkg/ota"
)

func newFirmwareCmd() *cobra.Command {
	var bucket, key, region, current string

	cmd := &cobra.Command{
		Use:   "firmware-check",
		Short: "Check the OTA manifest for a newer firmware build",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := device.LoadConfig()
			if bucket == "" {
				bucket = cfg.OTABucket
			}
			if key == "" {
				key = cfg.OTAManifestKey
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var opts []func(*awsconfig.LoadOptions) error
			if region != "" {
				opts = append(opts, awsconfig.WithRegion(region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}

			checker := ota.NewChecker(s3.NewFromConfig(awsCfg), bucket, key)
			manifest, err := checker.Fetch(ctx)
			if err != nil {
				return err
			}

			if manifest.NeedsUpdate(current) {
				cli.PrintInfo("update available: %s -> %s (build %s)", current, manifest.Version, manifest.BuildID)
			} else {
				cli.PrintSuccess("up to date at %s", current)
			}
			return cli.Output(manifest, cli.OutputOptions{Format: cli.FormatYAML})
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "OTA manifest bucket (defaults to OTA_BUCKET)")
	cmd.Flags().StringVar(&key, "key", "", "OTA manifest key (defaults to OTA_MANIFEST_KEY)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region override")
	cmd.Flags().StringVar(&current, "current", "", "current firmware version installed")
	return cmd
}
