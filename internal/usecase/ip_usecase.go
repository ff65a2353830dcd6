package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/metrics"
)

const (
	SourceRouter = "router"
	SourcePublic = "public"

	DefaultSettleDelay = 20 * time.Second
)

type Options struct {
	Source      string
	UseFallback bool
	SettleDelay time.Duration
}

// CycleResult describes one resolution cycle. Err is set whenever the cycle
// did not reach the store, the store rejected the write, or the public
// services yielded no IPv4 (the record is then stored with both addresses
// empty).
type CycleResult struct {
	ID           string
	Source       string
	IPv4         *string
	IPv6         *string
	UsedFallback bool
	Outcome      domain.UpsertOutcome
	Err          error
}

type RefreshResult struct {
	Renewed bool
	Cycle   CycleResult
	Record  *domain.IPRecord
	Err     error
}

type IPUseCase struct {
	repo    domain.IPRepository
	router  domain.RouterGateway
	public  *PublicResolver
	opts    Options
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewIPUseCase(repo domain.IPRepository, router domain.RouterGateway, public *PublicResolver, opts Options, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *IPUseCase {
	return &IPUseCase{
		repo:    repo,
		router:  router,
		public:  public,
		opts:    opts,
		clock:   clk,
		logger:  logger,
		metrics: m,
	}
}

// FetchAndStore resolves the current addresses from the configured source
// and persists them when they changed. Failures are logged and reported in
// the result; they never panic or propagate.
func (uc *IPUseCase) FetchAndStore(ctx context.Context) CycleResult {
	result := CycleResult{ID: uuid.NewString(), Source: uc.opts.Source, Outcome: domain.UpsertFailed}
	log := uc.logger.With(zap.String("cycle", result.ID), zap.String("source", uc.opts.Source))
	log.Info("fetching IPs")

	label := "aborted"
	var publicErr error
	defer func() {
		uc.metrics.Cycles.WithLabelValues(uc.opts.Source, label).Inc()
	}()

	switch uc.opts.Source {
	case SourceRouter:
		routed := uc.router.ResolveIPs(ctx)
		if err := routed.Err(); err != nil {
			log.Error("error fetching IPs from router", zap.Error(err))
			if !uc.opts.UseFallback {
				log.Error("router fetch failed and fallback is disabled")
				result.Err = err
				return result
			}
			log.Info("router fetch failed, falling back to public IP services")
			result.UsedFallback = true
			result.IPv4, publicErr = uc.resolvePublic(ctx)
		} else {
			result.IPv4, result.IPv6 = routed.IPv4, routed.IPv6
			log.Info("fetched IPs from router",
				zap.String("ipv4", domain.Deref(result.IPv4, "")),
				zap.String("ipv6", domain.Deref(result.IPv6, "")))
		}
	case SourcePublic:
		result.IPv4, publicErr = uc.resolvePublic(ctx)
	default:
		result.Err = fmt.Errorf("%w: %q", domain.ErrUnknownSource, uc.opts.Source)
		log.Error("invalid IP source configuration", zap.Error(result.Err))
		return result
	}

	if publicErr != nil {
		// The stored record must not keep addresses that could not be confirmed.
		log.Error("public IP fetch failed, storing empty addresses", zap.Error(publicErr))
	}

	outcome, err := uc.repo.UpsertRecord(ctx, result.IPv4, result.IPv6, uc.clock.Now())
	result.Outcome = outcome
	if err != nil {
		label = "store_error"
		log.Error("error updating IPs", zap.Error(err))
		result.Err = err
		return result
	}

	label = outcome.String()
	if publicErr != nil {
		label = "no_ipv4"
		result.Err = publicErr
	}
	fields := []zap.Field{
		zap.String("ipv4", domain.Deref(result.IPv4, "")),
		zap.String("ipv6", domain.Deref(result.IPv6, "")),
	}
	switch outcome {
	case domain.UpsertUnchanged:
		log.Info("IPs have not changed, no update required")
	case domain.UpsertCreated:
		log.Info("added new IPs to database", fields...)
		uc.metrics.LastChange.Set(float64(uc.clock.Now().Unix()))
	case domain.UpsertUpdated:
		log.Info("updated IPs in database", fields...)
		uc.metrics.LastChange.Set(float64(uc.clock.Now().Unix()))
	}
	return result
}

// resolvePublic returns the public IPv4, or nil and ErrNoIPv4 when no
// service answered. IPv6 is never taken from public services.
func (uc *IPUseCase) resolvePublic(ctx context.Context) (*string, error) {
	res, err := uc.public.ResolvePublicIPv4(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoIPv4, err)
	}
	ip := res.IP
	return &ip, nil
}

// RefreshPublicIP forces the router to renegotiate its uplink, waits for the
// settle delay and then runs a cycle. Once the renewal is accepted, the
// caller's cancellation no longer stops the refresh.
func (uc *IPUseCase) RefreshPublicIP(ctx context.Context) RefreshResult {
	var result RefreshResult
	if err := uc.router.ForceRenewal(ctx); err != nil {
		result.Err = err
		uc.metrics.Refreshes.WithLabelValues("renewal_failed").Inc()
		return result
	}
	result.Renewed = true

	// The router is already renegotiating; the cycle must complete even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if d := uc.opts.SettleDelay; d > 0 {
		uc.logger.Info("waiting for the router to obtain a new address", zap.Duration("delay", d))
		<-uc.clock.After(d)
	}

	result.Cycle = uc.FetchAndStore(ctx)
	if result.Cycle.Err != nil {
		result.Err = result.Cycle.Err
		uc.metrics.Refreshes.WithLabelValues("cycle_failed").Inc()
		return result
	}

	record, err := uc.repo.GetRecord(ctx)
	if err != nil {
		result.Err = err
		uc.metrics.Refreshes.WithLabelValues("cycle_failed").Inc()
		return result
	}
	result.Record = record
	uc.metrics.Refreshes.WithLabelValues("success").Inc()
	return result
}

func (uc *IPUseCase) CurrentRecord(ctx context.Context) (*domain.IPRecord, error) {
	return uc.repo.GetRecord(ctx)
}

// CheckHealth verifies the store is reachable and holds at most one record.
func (uc *IPUseCase) CheckHealth(ctx context.Context) error {
	if err := uc.repo.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	n, err := uc.repo.CountRecords(ctx)
	if err != nil {
		return err
	}
	if n > 1 {
		return fmt.Errorf("%w: %d rows", domain.ErrCorruptState, n)
	}
	return nil
}

func (uc *IPUseCase) WANStatistics(ctx context.Context) (domain.WANStats, error) {
	stats, err := uc.router.WANStatistics(ctx)
	if err != nil {
		uc.logger.Error("failed to retrieve WAN statistics", zap.Error(err))
		return stats, err
	}
	return stats, nil
}

// IsRenewalFailure reports whether the refresh failed before the router
// accepted the renewal request.
func (r RefreshResult) IsRenewalFailure() bool {
	return r.Err != nil && !r.Renewed
}
