package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/homeauth/internal/api"
	"github.com/pysugar/homeauth/internal/api/handlers"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local session API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *App) error {
	server := &http.Server{
		Addr: app.Config.Addr(),
		Handler: api.NewRouter(api.Deps{
			DB:           app.DB,
			Engine:       app.Engine,
			Cache:        app.Cache,
			Directory:    app.Directory,
			Monitor:      app.Monitor,
			Metrics:      app.Metrics,
			PollInterval: app.Config.DirectoryPollInterval,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Warm the device memo so the first sign-in does not wait on lookups.
	go app.Devices.Cached(ctx)

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("homeauth listening", "operation", "serve", "addr", server.Addr,
			"api_key", handlers.MaskAPIKey(db.GetAPIKey(app.DB)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Logger.Info("shutting down", "operation", "serve")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
