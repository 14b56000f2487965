package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kincore/internal/api"
)

func newLoginCmd(rt *runtime) *cobra.Command {
	var login, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Example: `  kincore login --login ivan --password secret
  KINCORE_PASSWORD=secret kincore login --login ivan@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("KINCORE_PASSWORD")
			}
			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			user, err := app.Auth.SignIn(cmd.Context(), login, password)
			if err != nil {
				return err
			}
			app.Levels.Refresh(cmd.Context())

			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), app.Session.Snapshot())
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "Username or email")
	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to KINCORE_PASSWORD)")
	_ = cmd.MarkFlagRequired("login")
	return cmd
}

func newRegisterCmd(rt *runtime) *cobra.Command {
	var reg api.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reg.Password == "" {
				reg.Password = os.Getenv("KINCORE_PASSWORD")
			}
			if reg.PasswordConfirm == "" {
				reg.PasswordConfirm = reg.Password
			}
			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			user, err := app.Auth.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			app.Levels.Refresh(cmd.Context())

			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), app.Session.Snapshot())
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s\n", user.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "Username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "Email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Password (defaults to KINCORE_PASSWORD)")
	cmd.Flags().StringVar(&reg.PasswordConfirm, "password-confirm", "", "Password confirmation (defaults to --password)")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&reg.MiddleName, "middle-name", "", "Middle name")
	cmd.Flags().StringVar(&reg.BirthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			token := app.Session.Token()
			if err := app.Auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			app.Dictionaries.Forget(token)
			if !isJSON(cmd) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), app.Session.Snapshot())
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), app.Session.Snapshot())
			}
			printUser(cmd.OutOrStdout(), app.Session.User())
			return nil
		},
	}
}

func newProfileCmd(rt *runtime) *cobra.Command {
	var firstName, lastName, middleName, birthDate, phone, email, bio string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update profile fields of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch api.ProfilePatch
			set := func(flag string, value string, field **string) {
				if cmd.Flags().Changed(flag) {
					v := value
					*field = &v
				}
			}
			set("first-name", firstName, &patch.FirstName)
			set("last-name", lastName, &patch.LastName)
			set("middle-name", middleName, &patch.MiddleName)
			set("birth-date", birthDate, &patch.BirthDate)
			set("phone", phone, &patch.Phone)
			set("email", email, &patch.Email)
			set("bio", bio, &patch.Bio)

			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			user, err := app.Auth.SaveProfile(cmd.Context(), patch)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), user)
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&middleName, "middle-name", "", "Middle name")
	cmd.Flags().StringVar(&birthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&email, "email", "", "Email")
	cmd.Flags().StringVar(&bio, "bio", "", "About")
	return cmd
}
