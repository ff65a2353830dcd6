package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/memory"
)

var errStore = errors.New("database is locked")

type fakeRouter struct {
	mu          sync.Mutex
	result      domain.RouterResult
	renewErr    error
	stats       domain.WANStats
	statsErr    error
	resolveHits int
	renewed     chan struct{}
}

func (f *fakeRouter) ResolveIPs(ctx context.Context) domain.RouterResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveHits++
	return f.result
}

func (f *fakeRouter) ForceRenewal(ctx context.Context) error {
	if f.renewed != nil {
		defer close(f.renewed)
	}
	return f.renewErr
}

func (f *fakeRouter) WANStatistics(ctx context.Context) (domain.WANStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeRouter) set(result domain.RouterResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
}

func (f *fakeRouter) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveHits
}

type lookupAnswer struct {
	ip  string
	err error
}

// fakeLookup answers per service name and records the call order.
type fakeLookup struct {
	mu      sync.Mutex
	answers map[string]lookupAnswer
	calls   []string
}

func (f *fakeLookup) Lookup(ctx context.Context, svc domain.LookupService) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, svc.Name)
	a, ok := f.answers[svc.Name]
	if !ok {
		return "", errors.New("connection refused")
	}
	return a.ip, a.err
}

func (f *fakeLookup) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// failingRepo wraps the memory store and fails selected operations.
type failingRepo struct {
	*memory.IPRepository
	failUpsert   bool
	failFailures bool
	records      int
}

func (r *failingRepo) UpsertRecord(ctx context.Context, ipv4, ipv6 *string, at time.Time) (domain.UpsertOutcome, error) {
	if r.failUpsert {
		return domain.UpsertFailed, errStore
	}
	return r.IPRepository.UpsertRecord(ctx, ipv4, ipv6, at)
}

func (r *failingRepo) RecordFailure(ctx context.Context, name string, at time.Time) error {
	if r.failFailures {
		return errStore
	}
	return r.IPRepository.RecordFailure(ctx, name, at)
}

func (r *failingRepo) DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.failFailures {
		return 0, errStore
	}
	return r.IPRepository.DeleteFailuresBefore(ctx, cutoff)
}

func (r *failingRepo) ListFailedServicesSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	if r.failFailures {
		return nil, errStore
	}
	return r.IPRepository.ListFailedServicesSince(ctx, cutoff)
}

func (r *failingRepo) CountRecords(ctx context.Context) (int, error) {
	if r.records > 0 {
		return r.records, nil
	}
	return r.IPRepository.CountRecords(ctx)
}

func catalog(names ...string) []domain.LookupService {
	services := make([]domain.LookupService, len(names))
	for i, name := range names {
		services[i] = domain.LookupService{Name: name, URL: "https://" + name + "/", Format: domain.FormatText, Timeout: time.Second}
	}
	return services
}
