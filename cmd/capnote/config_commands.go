package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"capnote/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:           %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Inbox dir:          %s\n", cfg.Paths.InboxDir)
			fmt.Fprintf(out, "Log dir:            %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "API bind:           %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "Database:           %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Storage folder:     %s\n", cfg.Storage.Folder)
			fmt.Fprintf(out, "Storage token:      %s\n", presence(tokenConfigured(cfg.Storage.TokenPath)))
			fmt.Fprintf(out, "Transcription key:  %s\n", presence(strings.TrimSpace(cfg.Transcription.APIKey) != ""))
			fmt.Fprintf(out, "Transcription model: %s\n", cfg.Transcription.Model)
			fmt.Fprintf(out, "Notifications:      %s\n", presence(strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""))
			fmt.Fprintf(out, "Recorder glob:      %s\n", orDisabled(cfg.Recorder.DeviceGlob))
			fmt.Fprintf(out, "Extensions:         %s\n", strings.Join(cfg.Recorder.Extensions, ", "))
			fmt.Fprintf(out, "Workers:            %d\n", cfg.Workflow.Workers)
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set the storage token path and transcription api_key before running capnoted.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func presence(configured bool) string {
	if configured {
		return "configured"
	}
	return "not configured"
}

func orDisabled(value string) string {
	if strings.TrimSpace(value) == "" {
		return "disabled"
	}
	return value
}

func tokenConfigured(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	data, err := os.ReadFile(path)
	return err == nil && len(strings.TrimSpace(string(data))) > 0
}
