package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

type PublicResult struct {
	IP      string
	Service string
}

// PublicResolver asks a shuffled, health-filtered subset of the catalog for
// the external IPv4 address. The first valid answer wins.
type PublicResolver struct {
	catalog []domain.LookupService
	lookup  domain.LookupClient
	health  *HealthRegistry
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPublicResolver(catalog []domain.LookupService, lookup domain.LookupClient, health *HealthRegistry, rng *rand.Rand, logger *zap.Logger) *PublicResolver {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &PublicResolver{
		catalog: catalog,
		lookup:  lookup,
		health:  health,
		rng:     rng,
		logger:  logger,
	}
}

// Candidates returns the catalog minus unavailable services, shuffled.
func (p *PublicResolver) Candidates(ctx context.Context) []domain.LookupService {
	// Health tracking is advisory; the registry logs its own storage errors.
	p.health.PurgeExpired(ctx)
	unavailable, _ := p.health.CurrentlyUnavailable(ctx)

	candidates := make([]domain.LookupService, 0, len(p.catalog))
	for _, svc := range p.catalog {
		if _, down := unavailable[svc.Name]; !down {
			candidates = append(candidates, svc)
		}
	}

	p.mu.Lock()
	p.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	p.mu.Unlock()
	return candidates
}

func (p *PublicResolver) ResolvePublicIPv4(ctx context.Context) (PublicResult, error) {
	candidates := p.Candidates(ctx)
	if len(candidates) == 0 {
		p.logger.Error("no available services to fetch public IP after checking failure history")
		return PublicResult{}, domain.ErrNoServicesAvailable
	}

	for _, svc := range candidates {
		log := p.logger.With(zap.String("service", svc.Name))
		log.Debug("fetching public IP")

		raw, err := p.lookup.Lookup(ctx, svc)
		if err == nil {
			err = domain.CheckIPv4(raw)
			if err == nil {
				log.Info("fetched public IP", zap.String("ipv4", raw))
				return PublicResult{IP: raw, Service: svc.Name}, nil
			}
			if errors.Is(err, domain.ErrWrongFamily) {
				// A reachable service answering with IPv6 is not broken.
				log.Warn("received a non-IPv4 address, trying the next service", zap.String("address", raw))
				continue
			}
		}
		log.Warn("error fetching public IP", zap.Error(err))
		p.health.MarkFailed(ctx, svc.Name)
	}

	p.logger.Error("all attempts to fetch a valid public IPv4 address failed",
		zap.Int("attempted", len(candidates)))
	return PublicResult{}, fmt.Errorf("%w (%d attempted)", domain.ErrAllServicesFailed, len(candidates))
}
