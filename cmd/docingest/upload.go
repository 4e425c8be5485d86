package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUploadCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an output directory to S3",
		Long: `Uploads every file under --dir (default: the configured output directory) to
aws.bucket. Object keys are the paths relative to --dir, under aws.prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.Ingest.OutputDir
			}

			b := newBackends(a.cfg, a.logger)
			defer b.Close()

			up, err := buildUploader(cmd.Context(), b)
			if err != nil {
				return err
			}
			n, err := up.UploadDir(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("upload %s: %w", dir, err)
			}

			a.logger.Info("Upload finished", zap.String("dir", dir), zap.Int("files", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files from %s to s3://%s\n", n, dir, a.cfg.AWS.Bucket)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to upload (default from config: outputs)")
	return cmd
}
