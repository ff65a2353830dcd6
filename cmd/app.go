package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/config"
	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/db"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/memory"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/persistence"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/publicip"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/router"
	"github.com/zinrai/wan-ip-provider/internal/metrics"
	"github.com/zinrai/wan-ip-provider/internal/usecase"
)

const userAgent = "wan-ip-provider"

type app struct {
	useCase  *usecase.IPUseCase
	clock    clock.Clock
	registry *prometheus.Registry
	close    func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	clk := clock.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	repo, closeRepo, err := openRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	catalog := publicip.DefaultCatalog()
	if cfg.ServiceCatalog != "" {
		catalog, err = publicip.LoadCatalog(cfg.ServiceCatalog)
		if err != nil {
			closeRepo()
			return nil, err
		}
	}
	logger.Info("loaded public IP service catalog", zap.Int("services", len(catalog)))

	host, err := router.ResolveHost(cfg.RouterHost)
	if err != nil {
		closeRepo()
		return nil, err
	}
	if host != cfg.RouterHost {
		logger.Info("discovered router address", zap.String("host", host))
	}
	routerClient := router.NewClient(host, cfg.RouterPort, cfg.Timeout(), logger)

	lookup := publicip.NewClient(&http.Client{}, userAgent)
	health := usecase.NewHealthRegistry(repo, clk, logger, m)
	public := usecase.NewPublicResolver(catalog, lookup, health, nil, logger)
	uc := usecase.NewIPUseCase(repo, routerClient, public, usecase.Options{
		Source:      cfg.IPSource,
		UseFallback: cfg.UseFallback,
		SettleDelay: cfg.Settle(),
	}, clk, logger, m)

	return &app{useCase: uc, clock: clk, registry: reg, close: closeRepo}, nil
}

// openRepository returns the PostgreSQL store when dsn is set and the
// in-memory store otherwise.
func openRepository(ctx context.Context, dsn string, logger *zap.Logger) (domain.IPRepository, func() error, error) {
	if dsn == "" {
		logger.Warn("DATABASE_URL is empty, state is kept in memory only")
		return memory.NewIPRepository(), func() error { return nil }, nil
	}
	database, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to prepare schema: %w", err)
	}
	return persistence.NewIPRepository(database), database.Close, nil
}
