package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"kincore/internal/cli"
	apphttp "kincore/internal/http"
	"kincore/internal/log"
	"kincore/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the session and level services to the browser UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			logger := rt.logger

			srv := apphttp.NewServer(apphttp.Options{
				Addr:           ":" + rt.cfg.Port,
				AllowedOrigins: rt.cfg.CORSAllowedOrigins,
				RateLimit: ratelimit.Config{
					RequestsPerSecond: rt.cfg.RateLimitRPS,
					Burst:             rt.cfg.RateLimitBurst,
				},
				Logger: logger,
			}, apphttp.Services{
				Session:      app.Session,
				Auth:         app.Auth,
				Levels:       app.Levels,
				Membership:   app.Membership,
				Finance:      app.Finance,
				Holdings:     app.Holdings,
				Dictionaries: app.Dictionaries,
				Ready:        app.Ready,
			})

			ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("Server shutdown error", log.FieldError, err)
				}
			})
			app.StartBackground(ctx)

			// A restored session needs its directory before the UI asks for it.
			if app.Session.IsAuthenticated() {
				app.Levels.Refresh(ctx)
			}

			logger.Info("Starting kincore server",
				"port", rt.cfg.Port, "api_url", rt.cfg.APIURL, "store", rt.cfg.StoreBackend,
				log.FieldOperation, log.OpStartup)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			cli.WaitForShutdown(ctx, done)
			app.Caches.Wait()
			logger.Info("Server stopped gracefully")
			return nil
		},
	}
}
