package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kincore/internal/cli"
	"kincore/internal/session"
)

// sessionApp returns the app when a session was restored.
func sessionApp(cmd *cobra.Command, rt *runtime) (*cli.App, error) {
	app, err := rt.App(cmd.Context())
	if err != nil {
		return nil, err
	}
	if !app.Session.IsAuthenticated() {
		return nil, session.ErrNotAuthenticated
	}
	return app, nil
}

// loadLevels is sessionApp with the level directory reloaded.
func loadLevels(cmd *cobra.Command, rt *runtime) (*cli.App, error) {
	app, err := sessionApp(cmd, rt)
	if err != nil {
		return nil, err
	}
	app.Levels.Refresh(cmd.Context())
	return app, nil
}

func newLevelsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "List the levels available to the signed-in user",
		Long:  "Reload the level directory and list it. The current level is marked with '*'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			st := app.Levels.State()
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printLevels(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newSelectCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "select <personal|family:ID|circle:ID>",
		Short: "Make a level the current one",
		Example: `  kincore select personal
  kincore select family:12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseLevelRef(args[0])
			if err != nil {
				return err
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			nav, err := app.Levels.Select(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), nav)
			}
			title := nav.Level.Title
			if title == "" {
				title = nav.Level.DisplayName()
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current level: %s (%s)\n", title, nav.Route)
			return nil
		},
	}
}
