package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/journalscope/internal/export/cloudwatch"
)

// streamName is the default log stream for a journal file: its base name
// without compression or text extensions.
func streamName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".txt")
	return name
}

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export FILE...",
		Short: "Send decoded journal records to CloudWatch Logs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.CloudWatchGroup == "" {
				return fmt.Errorf("--log-group (cloudwatch-log-group) is required")
			}
			client, err := cloudwatch.NewClient(cmd.Context(), a.cfg.CloudWatchRegion, a.cfg.AWSProfile)
			if err != nil {
				return err
			}

			results, err := decodeAll(cmd.Context(), args, a.cfg.DecodeWorkers, a.decodeOptions()...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range results {
				r := &results[i]
				if r.Err != nil {
					continue
				}
				stream := a.cfg.CloudWatchStream
				if stream == "" {
					stream = streamName(r.Path)
				}
				exp := &cloudwatch.Exporter{Client: client, Group: a.cfg.CloudWatchGroup, Stream: stream}
				n, err := exp.Export(cmd.Context(), r.Doc)
				if err != nil {
					r.Err = err
				}
				fmt.Fprintf(out, "%s  %s/%s  %d events\n", shortenPath(r.Path), a.cfg.CloudWatchGroup, stream, n)
			}
			return reportFailures(cmd.ErrOrStderr(), results)
		},
	}
	cmd.Flags().String("log-group", "", "CloudWatch log group")
	cmd.Flags().String("stream", "", "log stream (default: journal file name)")
	cmd.Flags().String("region", "", "AWS region")
	cmd.Flags().String("profile", "", "AWS shared config profile")
	bindFlag(a.v, cmd.Flags().Lookup("log-group"), "cloudwatch-log-group")
	bindFlag(a.v, cmd.Flags().Lookup("stream"), "cloudwatch-log-stream")
	bindFlag(a.v, cmd.Flags().Lookup("region"), "cloudwatch-region")
	bindFlag(a.v, cmd.Flags().Lookup("profile"), "aws-profile")
	return cmd
}
