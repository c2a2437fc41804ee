package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"gridlock/internal/api"
	"gridlock/internal/config"
	"gridlock/internal/store"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var raceID int64
	var episodeType string
	var force bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a pending episode for the daemon to pick up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *api.Service) error {
				ep, err := svc.Generate(cmd.Context(), api.GenerateRequest{
					RaceID:      raceID,
					EpisodeType: store.EpisodeType(episodeType),
					Force:       force,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d queued (%s)\n", ep.ID, ep.EpisodeType)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&raceID, "race", 0, "Race ID to cover (omit for an unscheduled episode)")
	cmd.Flags().StringVar(&episodeType, "type", string(store.TypePostRace), "Episode type (post-race, post-fp2, post-sprint, weekly-recap)")
	cmd.Flags().BoolVar(&force, "force", false, "Create even when the race already has an episode of this type")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <episode-id>",
		Short: "Reset a failed episode so it runs again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q", args[0])
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *api.Service) error {
				ep, err := svc.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Episode %d reset to %s\n", ep.ID, ep.Status)
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <episode-id>",
		Short: "Show one episode with its scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q", args[0])
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *api.Service) error {
				ep, scenes, err := svc.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Episode %d: %s\n", ep.ID, displayTitle(ep))
				fmt.Fprintf(out, "  Type:    %s\n", ep.EpisodeType)
				fmt.Fprintf(out, "  Status:  %s\n", colorizeStatus(out, ep.Status))
				if ep.YouTubeURL != "" {
					fmt.Fprintf(out, "  Video:   %s\n", ep.YouTubeURL)
				}
				if ep.DurationSeconds > 0 {
					fmt.Fprintf(out, "  Length:  %s\n", (time.Duration(ep.DurationSeconds) * time.Second).String())
				}
				if ep.LastError != "" {
					detail := ep.LastError
					if ep.LastErrorKind != "" {
						detail = fmt.Sprintf("%s (%s)", ep.LastError, ep.LastErrorKind)
					}
					fmt.Fprintf(out, "  Error:   %s\n", detail)
				}
				if len(scenes) == 0 {
					fmt.Fprintln(out, "  No scenes yet")
					return nil
				}

				rows := make([][]string, 0, len(scenes))
				for _, scene := range scenes {
					rows = append(rows, []string{
						strconv.Itoa(scene.SceneNumber),
						string(scene.Status),
						strconv.Itoa(scene.RetryCount),
						truncate(scene.Dialogue, 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Scene", "Status", "Retries", "Dialogue"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List recent episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *api.Service) error {
				episodes, err := svc.List(cmd.Context(), store.EpisodeStatus(statusFilter), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(episodes) == 0 {
					fmt.Fprintln(out, "No episodes")
					return nil
				}
				rows := make([][]string, 0, len(episodes))
				for _, ep := range episodes {
					rows = append(rows, []string{
						strconv.FormatInt(ep.ID, 10),
						string(ep.EpisodeType),
						string(ep.Status),
						truncate(displayTitle(ep), 40),
						ep.TriggeredAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Type", "Status", "Title", "Triggered"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, generating, stitching, uploading, published, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of episodes to show")
	return cmd
}

func displayTitle(ep *store.Episode) string {
	if ep.Title != "" {
		return ep.Title
	}
	return "(untitled)"
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func colorizeStatus(w io.Writer, status store.EpisodeStatus) string {
	if !shouldColorize(w) {
		return string(status)
	}
	switch status {
	case store.EpisodePublished:
		return text.FgGreen.Sprint(string(status))
	case store.EpisodeFailed:
		return text.FgRed.Sprint(string(status))
	case store.EpisodePending:
		return text.FgYellow.Sprint(string(status))
	default:
		return text.FgCyan.Sprint(string(status))
	}
}
