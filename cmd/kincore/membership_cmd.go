package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kincore/internal/core"
)

func newJoinCmd(rt *runtime) *cobra.Command {
	var code, password string

	cmd := &cobra.Command{
		Use:   "join <family|circle>",
		Short: "Join a family or circle with its join code and password",
		Example: `  kincore join family --code AB12CD --password 4821
  kincore join circle --code ZX90QW --password 1177`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseGroupKind(args[0])
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("KINCORE_JOIN_PASSWORD")
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			group, err := app.Membership.Join(cmd.Context(), kind, code, password)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"group":  group,
					"levels": app.Levels.State(),
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Joined %s %q\n", kind, group.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Join code")
	cmd.Flags().StringVar(&password, "password", "", "Join password (defaults to KINCORE_JOIN_PASSWORD)")
	return cmd
}

func newCreateCmd(rt *runtime) *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create <family|circle>",
		Short: "Create a family or circle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseGroupKind(args[0])
			if err != nil {
				return err
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			group, err := app.Membership.Create(cmd.Context(), kind, name, description)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"group":  group,
					"levels": app.Levels.State(),
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", kind)
			printGroup(cmd.OutOrStdout(), group)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	return cmd
}

func newCredentialsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "credentials <family:ID|circle:ID>",
		Short: "Issue a new join code and password for a family or circle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseLevelRef(args[0])
			if err != nil {
				return err
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			creds, err := app.Membership.RegenerateCredentials(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), creds)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Join code: %s\nJoin password: %s\n", creds.JoinCode, creds.JoinPassword)
			return nil
		},
	}
}
