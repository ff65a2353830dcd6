package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/memory"
	"github.com/zinrai/wan-ip-provider/internal/metrics"
)

type fixture struct {
	repo    *memory.IPRepository
	router  *fakeRouter
	lookup  *fakeLookup
	clock   *clock.Mock
	metrics *metrics.Metrics
	uc      *IPUseCase
}

func newFixture(t *testing.T, repo domain.IPRepository, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		router:  &fakeRouter{},
		lookup:  &fakeLookup{answers: map[string]lookupAnswer{"ipify": {ip: "203.0.113.5"}}},
		clock:   clock.NewMock(),
		metrics: metrics.Nop(),
	}
	f.clock.Set(baseTime)
	if repo == nil {
		f.repo = memory.NewIPRepository()
		repo = f.repo
	}
	logger := zaptest.NewLogger(t)
	health := NewHealthRegistry(repo, f.clock, logger, f.metrics)
	public := NewPublicResolver(catalog("ipify"), f.lookup, health, rand.New(rand.NewPCG(1, 2)), logger)
	f.uc = NewIPUseCase(repo, f.router, public, opts, f.clock, logger, f.metrics)
	return f
}

func routerOK(ipv4, ipv6 string) domain.RouterResult {
	return domain.RouterResult{IPv4: domain.StringPtr(ipv4), IPv6: domain.StringPtr(ipv6)}
}

func TestFetchAndStoreRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("stores both families", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter})
		f.router.set(routerOK("198.51.100.1", "2001:db8::1"))

		res := f.uc.FetchAndStore(ctx)
		require.NoError(t, res.Err)
		assert.Equal(t, domain.UpsertCreated, res.Outcome)
		assert.NotEmpty(t, res.ID)

		rec, err := f.repo.GetRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.1", *rec.IPv4)
		assert.Equal(t, "2001:db8::1", *rec.IPv6)
		assert.Equal(t, baseTime, rec.UpdatedAt)
		assert.Empty(t, f.lookup.called())
	})

	t.Run("repeated cycle writes once", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter})
		f.router.set(routerOK("198.51.100.1", "2001:db8::1"))

		assert.Equal(t, domain.UpsertCreated, f.uc.FetchAndStore(ctx).Outcome)
		f.clock.Add(time.Minute)
		assert.Equal(t, domain.UpsertUnchanged, f.uc.FetchAndStore(ctx).Outcome)
		assert.Equal(t, 1, f.repo.Writes())

		rec, _ := f.repo.GetRecord(ctx)
		assert.Equal(t, baseTime, rec.UpdatedAt)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(SourceRouter, "unchanged")))
	})

	t.Run("fallback clears a previously stored IPv6", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter, UseFallback: true})
		f.router.set(routerOK("198.51.100.1", "2001:db8::1"))
		require.NoError(t, f.uc.FetchAndStore(ctx).Err)

		f.router.set(domain.RouterResult{
			IPv6:    domain.StringPtr("2001:db8::1"),
			IPv4Err: errors.New("connection refused"),
		})
		res := f.uc.FetchAndStore(ctx)
		require.NoError(t, res.Err)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, domain.UpsertUpdated, res.Outcome)

		rec, _ := f.repo.GetRecord(ctx)
		assert.Equal(t, "203.0.113.5", *rec.IPv4)
		assert.Nil(t, rec.IPv6)
	})

	t.Run("fallback disabled leaves the store untouched", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter, UseFallback: false})
		f.router.set(routerOK("198.51.100.1", ""))
		require.NoError(t, f.uc.FetchAndStore(ctx).Err)

		f.router.set(domain.RouterResult{IPv4Err: errors.New("timeout")})
		res := f.uc.FetchAndStore(ctx)
		assert.Error(t, res.Err)
		assert.Equal(t, domain.UpsertFailed, res.Outcome)
		assert.Empty(t, f.lookup.called())

		rec, _ := f.repo.GetRecord(ctx)
		assert.Equal(t, "198.51.100.1", *rec.IPv4)
		assert.Equal(t, 1, f.repo.Writes())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(SourceRouter, "aborted")))
	})

	t.Run("fallback without any IPv4 stores empty addresses", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter, UseFallback: true})
		f.router.set(routerOK("198.51.100.1", "2001:db8::1"))
		require.NoError(t, f.uc.FetchAndStore(ctx).Err)

		f.router.set(domain.RouterResult{IPv4Err: errors.New("timeout")})
		f.lookup.answers = nil
		res := f.uc.FetchAndStore(ctx)
		assert.ErrorIs(t, res.Err, domain.ErrNoIPv4)
		assert.ErrorIs(t, res.Err, domain.ErrAllServicesFailed)
		assert.True(t, res.UsedFallback)
		assert.Equal(t, domain.UpsertUpdated, res.Outcome)
		assert.Equal(t, 2, f.repo.Writes())

		rec, _ := f.repo.GetRecord(ctx)
		assert.Nil(t, rec.IPv4)
		assert.Nil(t, rec.IPv6)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(SourceRouter, "no_ipv4")))
	})
}

func TestFetchAndStorePublic(t *testing.T) {
	ctx := context.Background()

	t.Run("stores IPv4 only", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourcePublic})
		res := f.uc.FetchAndStore(ctx)
		require.NoError(t, res.Err)
		assert.Equal(t, 0, f.router.hits())

		rec, _ := f.repo.GetRecord(ctx)
		assert.Equal(t, "203.0.113.5", *rec.IPv4)
		assert.Nil(t, rec.IPv6)
	})

	t.Run("all services failing clears the stored IPv4", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourcePublic})
		require.NoError(t, f.uc.FetchAndStore(ctx).Err)

		f.lookup.answers = nil
		res := f.uc.FetchAndStore(ctx)
		assert.ErrorIs(t, res.Err, domain.ErrNoIPv4)
		assert.Equal(t, 2, f.repo.Writes())

		rec, _ := f.repo.GetRecord(ctx)
		assert.Nil(t, rec.IPv4)
		assert.Nil(t, rec.IPv6)
	})
}

func TestFetchAndStoreUnknownSource(t *testing.T) {
	f := newFixture(t, nil, Options{Source: "carrier-pigeon"})
	res := f.uc.FetchAndStore(context.Background())
	assert.ErrorIs(t, res.Err, domain.ErrUnknownSource)
	assert.Equal(t, 0, f.router.hits())
	assert.Empty(t, f.lookup.called())
	assert.Equal(t, 0, f.repo.Writes())
}

func TestFetchAndStoreStoreError(t *testing.T) {
	repo := &failingRepo{IPRepository: memory.NewIPRepository(), failUpsert: true}
	f := newFixture(t, repo, Options{Source: SourceRouter})
	f.router.set(routerOK("198.51.100.1", ""))

	res := f.uc.FetchAndStore(context.Background())
	assert.ErrorIs(t, res.Err, errStore)
	assert.Equal(t, domain.UpsertFailed, res.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(SourceRouter, "store_error")))
}

func TestRefreshPublicIP(t *testing.T) {
	ctx := context.Background()

	t.Run("renewal failure", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter})
		f.router.renewErr = errors.New("action not supported")

		res := f.uc.RefreshPublicIP(ctx)
		assert.True(t, res.IsRenewalFailure())
		assert.Equal(t, 0, f.router.hits())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("renewal_failed")))
	})

	t.Run("no settle delay", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter})
		f.router.set(routerOK("198.51.100.7", "2001:db8::7"))

		res := f.uc.RefreshPublicIP(ctx)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Record)
		assert.Equal(t, "198.51.100.7", *res.Record.IPv4)
		assert.Equal(t, "2001:db8::7", *res.Record.IPv6)
	})

	t.Run("waits for the settle delay", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter, SettleDelay: DefaultSettleDelay})
		f.router.set(routerOK("198.51.100.8", ""))
		f.router.renewed = make(chan struct{})

		done := make(chan RefreshResult, 1)
		go func() { done <- f.uc.RefreshPublicIP(ctx) }()
		<-f.router.renewed
		assert.Equal(t, 0, f.router.hits())

		var res RefreshResult
		deadline := time.After(5 * time.Second)
	wait:
		for {
			select {
			case res = <-done:
				break wait
			case <-deadline:
				t.Fatal("refresh did not complete")
			default:
				f.clock.Add(5 * time.Second)
			}
		}
		require.NoError(t, res.Err)
		assert.Equal(t, 1, f.router.hits())
		assert.Equal(t, "198.51.100.8", *res.Record.IPv4)
	})

	t.Run("caller cancellation does not abandon the cycle", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter, SettleDelay: DefaultSettleDelay})
		f.router.set(routerOK("198.51.100.9", ""))
		f.router.renewed = make(chan struct{})
		cctx, cancel := context.WithCancel(ctx)

		done := make(chan RefreshResult, 1)
		go func() { done <- f.uc.RefreshPublicIP(cctx) }()
		<-f.router.renewed
		cancel()

		var res RefreshResult
		deadline := time.After(5 * time.Second)
	wait:
		for {
			select {
			case res = <-done:
				break wait
			case <-deadline:
				t.Fatal("refresh did not complete")
			default:
				f.clock.Add(5 * time.Second)
			}
		}
		require.NoError(t, res.Err)
		assert.Equal(t, 1, f.router.hits())
		rec, err := f.repo.GetRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.9", *rec.IPv4)
	})

	t.Run("cycle failure after renewal", func(t *testing.T) {
		f := newFixture(t, nil, Options{Source: SourceRouter})
		f.router.set(domain.RouterResult{IPv4Err: errors.New("timeout")})

		res := f.uc.RefreshPublicIP(ctx)
		assert.Error(t, res.Err)
		assert.False(t, res.IsRenewalFailure())
		assert.Nil(t, res.Record)
	})
}

func TestCheckHealth(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil, Options{Source: SourceRouter})
	assert.NoError(t, f.uc.CheckHealth(ctx))

	corrupt := &failingRepo{IPRepository: memory.NewIPRepository(), records: 2}
	f = newFixture(t, corrupt, Options{Source: SourceRouter})
	assert.ErrorIs(t, f.uc.CheckHealth(ctx), domain.ErrCorruptState)
}

func TestWANStatistics(t *testing.T) {
	f := newFixture(t, nil, Options{Source: SourceRouter})
	f.router.stats = domain.WANStats{UptimeSeconds: 90}
	stats, err := f.uc.WANStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(90), stats.UptimeSeconds)

	f.router.statsErr = errors.New("unreachable")
	_, err = f.uc.WANStatistics(context.Background())
	assert.Error(t, err)
}
