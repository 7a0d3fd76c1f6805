package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/export"
)

var (
	exportOut string
	exportS3  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every indexable record as JSON lines",
	Long: `Write every indexable record as JSON lines.

The export goes to stdout unless --out names a file or --s3 uploads it to
DOCSYNC_EXPORT_S3_BUCKET.`,
	GroupID: "documents",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var dest export.Destination
		var where string
		switch {
		case exportS3 && exportOut != "":
			return fmt.Errorf("--out and --s3 are mutually exclusive")
		case exportS3:
			s3Dest, err := export.NewS3Destination(ctx, export.S3Options{
				Bucket:   a.cfg.ExportS3Bucket,
				Key:      a.cfg.ExportS3Key,
				Region:   a.cfg.ExportS3Region,
				Endpoint: a.cfg.ExportS3Endpoint,
			})
			if err != nil {
				return err
			}
			dest = s3Dest
			where = "s3://" + a.cfg.ExportS3Bucket + "/" + s3Dest.ObjectKey()
		case exportOut != "":
			dest = &export.FileDestination{Path: exportOut}
			where = exportOut
		}

		if dest == nil {
			_, err := export.WriteJSONL(ctx, a.registry, a.store, a.codec, cmd.OutOrStdout())
			return err
		}

		var buf bytes.Buffer
		n, err := export.WriteJSONL(ctx, a.registry, a.store, a.codec, &buf)
		if err != nil {
			return err
		}
		if err := dest.Write(ctx, buf.Bytes()); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		reportExport(cmd.ErrOrStderr(), n, where)
		return nil
	},
}

func reportExport(w io.Writer, n int, where string) {
	fmt.Fprintf(w, "exported %d records to %s\n", n, where)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the export to this file")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "upload the export to S3")
}
