// Package sessions implements session lifecycle commands.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/runtime"
)

// Command creates the sessions command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage active-learning search sessions",
	}

	cmd.AddCommand(
		createCommand(settings),
		progressCommand(settings),
		archiveCommand(settings),
		deleteCommand(settings),
	)
	return cmd
}

func createCommand(settings *conf.Settings) *cobra.Command {
	var (
		projectID  uint
		tagName    string
		threshold  float64
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new search session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			session, err := app.Engine.CreateSession(projectID, tagName, threshold, maxResults)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created session %s (id %d)\n", session.UUID, session.ID)
			return nil
		},
	}

	cmd.Flags().UintVar(&projectID, "project", 0, "Project the session belongs to")
	cmd.Flags().StringVar(&tagName, "tag", "", "Target sound class for the session")
	cmd.Flags().Float64Var(&threshold, "threshold", settings.Search.MinSimilarity, "Minimum similarity for search results, between 0.0 and 1.0")
	cmd.Flags().IntVar(&maxResults, "max-results", settings.Search.TopK, "Maximum size of the result pool")
	return cmd
}

func progressCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress [session-uuid]",
		Short: "Show labeling and training progress for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			session, err := app.Store.GetSessionByUUID(args[0])
			if err != nil {
				return err
			}
			progress, err := app.Engine.GetProgress(session.ID)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(progress)
		},
	}
	return cmd
}

func archiveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [session-uuid]",
		Short: "Archive a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			session, err := app.Store.GetSessionByUUID(args[0])
			if err != nil {
				return err
			}
			return app.Engine.Archive(session.ID)
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete [session-uuid]",
		Short: "Delete a session and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Fprintln(os.Stderr, "refusing to delete without --force")
				return fmt.Errorf("confirmation required")
			}

			app, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			session, err := app.Store.GetSessionByUUID(args[0])
			if err != nil {
				return err
			}
			return app.Engine.Delete(session.ID)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm the deletion")
	return cmd
}
