package domain

import (
	"context"

	"go.uber.org/multierr"
)

// RouterResult holds the addresses reported by the router. The two families
// are resolved independently; either may fail while the other succeeds.
type RouterResult struct {
	IPv4    *string
	IPv6    *string
	IPv4Err error
	IPv6Err error
}

// Err combines the per-family errors, nil when both succeeded.
func (r RouterResult) Err() error {
	return multierr.Combine(r.IPv4Err, r.IPv6Err)
}

type WANStats struct {
	MaxDownstreamBitRate uint64
	MaxUpstreamBitRate   uint64
	UptimeSeconds        uint64
	BytesSent            uint64
	BytesReceived        uint64
}

type RouterGateway interface {
	ResolveIPs(ctx context.Context) RouterResult
	ForceRenewal(ctx context.Context) error
	WANStatistics(ctx context.Context) (WANStats, error)
}

// LookupClient queries a single public lookup service and returns the raw
// address string it reported.
type LookupClient interface {
	Lookup(ctx context.Context, svc LookupService) (string, error)
}
