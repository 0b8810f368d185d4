package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capnote/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.StatusSummary
			if err := ctx.getJSON("/api/status", &status); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, strings.Join(renderStatusLines(status, colorize), "\n"))
			return nil
		},
	}
}

func renderStatusLines(status api.StatusSummary, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)

	runningKind := statusError
	runningMsg := "stopped"
	if status.Running {
		runningKind = statusOK
		runningMsg = fmt.Sprintf("pid %d", status.PID)
	}
	lines = append(lines, renderStatusLine("Daemon", runningKind, runningMsg, colorize))

	onlineKind := statusWarn
	onlineMsg := "offline, uploads deferred"
	if status.Online {
		onlineKind = statusOK
		onlineMsg = "online"
	}
	lines = append(lines, renderStatusLine("Network", onlineKind, onlineMsg, colorize))
	lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Records", colorize)...)
	for _, state := range []string{api.StatusPending, api.StatusUploaded, api.StatusDone, api.StatusError} {
		count := status.RecordCounts[state]
		kind := statusInfo
		if state == api.StatusError && count > 0 {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(labelFor(state), kind, fmt.Sprintf("%d", count), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Tasks", colorize)...)
	lines = append(lines, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", status.TasksQueued), colorize))
	lines = append(lines, renderStatusLine("Running", statusInfo, fmt.Sprintf("%d", status.TasksRunning), colorize))
	return lines
}

func labelFor(state string) string {
	if state == "" {
		return state
	}
	return strings.ToUpper(state[:1]) + state[1:]
}
