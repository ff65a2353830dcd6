package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zinrai/wan-ip-provider/internal/interface/api"
	"github.com/zinrai/wan-ip-provider/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Resolve the public addresses periodically and serve them over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.LogSummary(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	scheduler := usecase.NewScheduler(a.useCase, cfg.Interval(), a.clock, logger)
	handler := api.NewIPHandler(a.useCase, api.NewRefreshLimiter(cfg.RefreshWindow(), a.clock), cfg.EnableRefreshIPEndpoint, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.NewRouter(handler, a.registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting API server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// A refresh request may still be waiting for the router to settle.
		grace := cfg.Settle() + 2*cfg.Timeout()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		logger.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
