package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultListenAddr = "localhost:8000"

func serveCmd(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "serve",
		Short:             "Serve the bridge and withdrawal API, metrics and wallet balances",
		PersistentPreRunE: initApp(a),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s serve --listen localhost:8000 --metrics-port 2112`, appName)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			listen, err := cmd.Flags().GetString(flagListen)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.Config.Api.Listen
			}
			if listen == "" {
				listen = defaultListenAddr
			}
			metricsPort, err := cmd.Flags().GetInt16(flagMetricsPort)
			if err != nil {
				return err
			}

			app, err := a.NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			g, ctx := errgroup.WithContext(cmd.Context())

			if a.LogLevel != "debug" && !a.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			router, err := newRouter(&api{
				ctx:          ctx,
				orchestrator: app.Orchestrator,
				balances:     app.Balances,
				withdrawer:   app.Withdrawer,
				logger:       a.Logger,
			}, a.Config.Api.TrustedProxies)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: listen, Handler: router, ReadHeaderTimeout: 10 * time.Second}

			g.Go(func() error {
				a.Logger.Info("Serving API", "address", listen)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				a.Logger.Info("Serving metrics", "port", metricsPort)
				return app.Metrics.Serve(ctx, metricsPort)
			})
			g.Go(func() error {
				app.Balances.Start(ctx)
				return nil
			})

			return g.Wait()
		},
	}
	cmd.Flags().String(flagListen, "", fmt.Sprintf("API listen address (default: api.listen from the config or %s)", defaultListenAddr))
	return cmd
}
