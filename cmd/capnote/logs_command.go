package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"capnote/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logPath := filepath.Join(cfg.Paths.LogDir, "capnote.log")

			out := cmd.OutOrStdout()
			result, err := logs.Tail(cmd.Context(), logPath, logs.TailOptions{Offset: -1, Limit: limit})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(result.Lines) == 0 {
					fmt.Fprintf(out, "No log lines at %s\n", logPath)
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), logPath, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   30 * time.Second,
				})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(out, line)
				}
				offset = next.Offset
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log lines")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of recent lines to show")
	return cmd
}
