package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kincore/internal/cli"
	"kincore/internal/config"
	"kincore/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

// runtime is the state shared by the subcommands of one invocation.
type runtime struct {
	envFile string
	output  string
	apiURL  string

	cfg    *config.Config
	logger *log.Logger
	app    *cli.App
}

// App builds the service graph on first use.
func (rt *runtime) App(ctx context.Context) (*cli.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	app, err := cli.NewApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.app = app
	return app, nil
}

func (rt *runtime) close() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	rt.app = nil
	return err
}

func newRootCmd(rt *runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kincore",
		Short:         "KinCore client core",
		Long:          "Session, level and membership client for the KinCore family platform, as a CLI and a local JSON API.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(rt.output); err != nil {
				return err
			}
			cli.LoadEnvFile(rt.envFile)
			cfg, err := cli.LoadAndValidateConfig(func(c *config.Config) {
				if cmd.Flags().Changed("api-url") {
					c.APIURL = rt.apiURL
				}
			})
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = cli.SetupLogger(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().StringVarP(&rt.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&rt.apiURL, "api-url", "", "KinCore API base URL (overrides KINCORE_API_URL)")

	rootCmd.AddCommand(
		newServeCmd(rt),
		newLoginCmd(rt),
		newRegisterCmd(rt),
		newLogoutCmd(rt),
		newWhoamiCmd(rt),
		newProfileCmd(rt),
		newLevelsCmd(rt),
		newSelectCmd(rt),
		newJoinCmd(rt),
		newCreateCmd(rt),
		newCredentialsCmd(rt),
		newExpensesCmd(rt),
		newAssetsCmd(rt),
		newLiabilitiesCmd(rt),
	)
	return rootCmd
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	rt := &runtime{}
	defer func() { _ = rt.close() }()

	rootCmd := newRootCmd(rt)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(stdout, errorBody(err))
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %s\n", errorMessage(err))
		}
		return 1
	}
	return 0
}
