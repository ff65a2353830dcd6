// Package memory is a process-local IPRepository used when no database is
// configured. State does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

type IPRepository struct {
	mu       sync.RWMutex
	record   *domain.IPRecord
	failures []domain.FailedServiceMark
	nextID   int64
	writes   int
}

func NewIPRepository() *IPRepository {
	return &IPRepository{}
}

func (r *IPRepository) GetRecord(ctx context.Context) (*domain.IPRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.record == nil {
		return nil, nil
	}
	rec := *r.record
	return &rec, nil
}

func (r *IPRepository) UpsertRecord(ctx context.Context, ipv4, ipv6 *string, at time.Time) (domain.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record != nil && r.record.Equal(ipv4, ipv6) {
		return domain.UpsertUnchanged, nil
	}
	outcome := domain.UpsertUpdated
	if r.record == nil {
		outcome = domain.UpsertCreated
	}
	r.record = &domain.IPRecord{IPv4: copyPtr(ipv4), IPv6: copyPtr(ipv6), UpdatedAt: at}
	r.writes++
	return outcome, nil
}

func (r *IPRepository) CountRecords(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.record == nil {
		return 0, nil
	}
	return 1, nil
}

func (r *IPRepository) RecordFailure(ctx context.Context, serviceName string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.failures = append(r.failures, domain.FailedServiceMark{ID: r.nextID, ServiceName: serviceName, FailedAt: at})
	return nil
}

func (r *IPRepository) DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.failures[:0]
	var deleted int64
	for _, f := range r.failures {
		if f.FailedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, f)
	}
	r.failures = kept
	return deleted, nil
}

func (r *IPRepository) ListFailedServicesSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, f := range r.failures {
		if !f.FailedAt.Before(cutoff) {
			seen[f.ServiceName] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *IPRepository) Ping(ctx context.Context) error {
	return nil
}

// Writes returns how many times the record was inserted or updated.
func (r *IPRepository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// Failures returns a copy of the stored failure marks.
func (r *IPRepository) Failures() []domain.FailedServiceMark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FailedServiceMark, len(r.failures))
	copy(out, r.failures)
	return out
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
