package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services/ytclient"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigAuthorizeCommand(ctx))
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:        %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Work dir:        %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "Log dir:         %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Database:        %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Script model:    %s (key set: %s)\n", cfg.Script.Model, yesNo(cfg.Script.APIKey != ""))
			fmt.Fprintf(out, "Image model:     %s (key set: %s)\n", cfg.Image.Model, yesNo(cfg.Image.APIKey != ""))
			fmt.Fprintf(out, "Synth space:     %s (quality %s)\n", cfg.Synth.SpaceID, cfg.Synth.Quality)
			fmt.Fprintf(out, "Storage:         %s (ssl: %s)\n", cfg.Storage.Endpoint, yesNo(cfg.Storage.UseSSL))
			fmt.Fprintf(out, "Scenes/episode:  %d\n", cfg.Video.SceneCount)
			fmt.Fprintf(out, "Notifications:   %s\n", yesNo(cfg.Notifications.NtfyTopic != ""))
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

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
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set the API keys (or their GRIDLOCK_* environment variables) before starting gridlockd.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigAuthorizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Run the one-time OAuth flow for video uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := ytclient.New(cfg.YouTube, logging.NewNop())
			url, err := client.AuthorizeURL()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL in a browser and approve access:")
			fmt.Fprintln(out, "  "+url)
			fmt.Fprint(out, "Paste the authorization code: ")

			reader := bufio.NewReader(cmd.InOrStdin())
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}
			if err := client.SaveToken(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.YouTube.TokenFile)
			return nil
		},
	}
}
