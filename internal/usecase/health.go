package usecase

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/metrics"
)

// FailureExpiry is how long a failed lookup service stays excluded.
const FailureExpiry = 24 * time.Hour

// HealthRegistry tracks which public lookup services failed recently.
// Tracking is advisory: storage errors are logged and returned, and the
// registry then behaves as if it had no information.
type HealthRegistry struct {
	repo    domain.IPRepository
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHealthRegistry(repo domain.IPRepository, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *HealthRegistry {
	return &HealthRegistry{repo: repo, clock: clk, logger: logger, metrics: m}
}

func (h *HealthRegistry) cutoff() time.Time {
	return h.clock.Now().Add(-FailureExpiry)
}

// PurgeExpired deletes marks older than FailureExpiry.
func (h *HealthRegistry) PurgeExpired(ctx context.Context) error {
	n, err := h.repo.DeleteFailuresBefore(ctx, h.cutoff())
	if err != nil {
		h.logger.Error("error cleaning old failures", zap.Error(err))
		return err
	}
	if n > 0 {
		h.logger.Debug("purged expired service failures", zap.Int64("count", n))
	}
	return nil
}

// MarkFailed records one failure of the named service.
func (h *HealthRegistry) MarkFailed(ctx context.Context, service string) error {
	h.metrics.ServiceFailures.WithLabelValues(service).Inc()
	if err := h.repo.RecordFailure(ctx, service, h.clock.Now()); err != nil {
		h.logger.Error("error recording failed service", zap.String("service", service), zap.Error(err))
		return err
	}
	return nil
}

// CurrentlyUnavailable returns the services with a non-expired mark. On a
// storage error the set is empty.
func (h *HealthRegistry) CurrentlyUnavailable(ctx context.Context) (map[string]struct{}, error) {
	names, err := h.repo.ListFailedServicesSince(ctx, h.cutoff())
	if err != nil {
		h.logger.Error("error fetching failed services", zap.Error(err))
		return map[string]struct{}{}, err
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}
