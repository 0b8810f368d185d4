package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"capnote/internal/api"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings and their sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.RecordListResponse
			if err := ctx.getJSON("/api/records", &resp); err != nil {
				return err
			}

			filter := strings.ToLower(strings.TrimSpace(statusFilter))
			rows := make([][]string, 0, len(resp.Records))
			for _, record := range resp.Records {
				if filter != "" && record.Status != filter {
					continue
				}
				rows = append(rows, []string{
					strconv.FormatInt(record.ID, 10),
					record.Title,
					record.Status,
					formatDuration(record.DurationSeconds),
					formatTimestamp(record.CapturedAt),
					truncate(record.ErrorMessage, 40),
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No recordings")
				return nil
			}
			table := renderTable(
				[]string{"ID", "Title", "Status", "Duration", "Captured", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show records with this status (pending, uploaded, done, error)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show full detail for one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			var resp api.CaptureResponse
			if err := ctx.getJSON(fmt.Sprintf("/api/records/%d", id), &resp); err != nil {
				return err
			}
			record := resp.Record

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:          %d\n", record.ID)
			fmt.Fprintf(out, "Title:       %s\n", record.Title)
			fmt.Fprintf(out, "File:        %s\n", record.FilePath)
			fmt.Fprintf(out, "Status:      %s\n", record.Status)
			fmt.Fprintf(out, "Captured:    %s\n", formatTimestamp(record.CapturedAt))
			fmt.Fprintf(out, "Duration:    %s\n", formatDuration(record.DurationSeconds))
			fmt.Fprintf(out, "Uploaded:    %s\n", yesNo(record.Uploaded))
			if record.RemoteURL != "" {
				fmt.Fprintf(out, "Remote URL:  %s\n", record.RemoteURL)
			}
			fmt.Fprintf(out, "Transcribed: %s\n", yesNo(record.Transcribed))
			if record.Transcript != "" {
				fmt.Fprintf(out, "Transcript:  %s\n", record.Transcript)
			}
			if record.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:       %s\n", record.ErrorMessage)
			}
			return nil
		},
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var durationSeconds float64

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Register a finished recording for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			var resp api.CaptureResponse
			payload := api.CaptureRequest{FilePath: path, DurationSeconds: durationSeconds}
			if err := ctx.doJSON("POST", "/api/capture", payload, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %q as record %d\n", resp.Record.Title, resp.Record.ID)
			return nil
		},
	}

	cmd.Flags().Float64Var(&durationSeconds, "duration", 0, "Recording duration in seconds")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a recording for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			var resp api.CaptureResponse
			if err := ctx.doJSON("POST", fmt.Sprintf("/api/records/%d/retry", id), nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Record %d re-queued\n", id)
			return nil
		},
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Queue every pending recording for upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				PendingUpload int `json:"pendingUpload"`
			}
			if err := ctx.doJSON("POST", "/api/sync", nil, &resp); err != nil {
				return err
			}
			if resp.PendingUpload == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing pending upload")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep queued for %d pending recording(s)\n", resp.PendingUpload)
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recording and its local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.doJSON("DELETE", fmt.Sprintf("/api/records/%d", id), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Record %d deleted\n", id)
			return nil
		},
	}
}

func parseRecordID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("record id must be a positive integer")
	}
	return id, nil
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	return fmt.Sprintf("%dm%02ds", total/60, total%60)
}

// formatTimestamp trims API timestamps down to a friendly minute precision.
func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	if len(value) >= 16 {
		return strings.Replace(value[:16], "T", " ", 1)
	}
	return value
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
