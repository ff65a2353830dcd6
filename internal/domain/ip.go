package domain

import (
	"context"
	"time"
)

// RecordID is the fixed primary key of the singleton IP record.
const RecordID = 1

type IPRecord struct {
	IPv4      *string
	IPv6      *string
	UpdatedAt time.Time
}

// Equal reports whether the record already holds the given addresses.
func (r *IPRecord) Equal(ipv4, ipv6 *string) bool {
	return sameAddr(r.IPv4, ipv4) && sameAddr(r.IPv6, ipv6)
}

func sameAddr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type FailedServiceMark struct {
	ID          int64
	ServiceName string
	FailedAt    time.Time
}

type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// LookupService is one entry of the public "what is my IP" catalog.
type LookupService struct {
	Name      string
	URL       string
	Format    ResponseFormat
	JSONField string
	Timeout   time.Duration
}

type UpsertOutcome int

const (
	UpsertFailed UpsertOutcome = iota
	UpsertUnchanged
	UpsertUpdated
	UpsertCreated
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertUnchanged:
		return "unchanged"
	case UpsertUpdated:
		return "updated"
	case UpsertCreated:
		return "created"
	default:
		return "failed"
	}
}

// IPRepository owns the persisted IP record and the failed-service marks.
type IPRepository interface {
	GetRecord(ctx context.Context) (*IPRecord, error)
	UpsertRecord(ctx context.Context, ipv4, ipv6 *string, at time.Time) (UpsertOutcome, error)
	CountRecords(ctx context.Context) (int, error)
	RecordFailure(ctx context.Context, serviceName string, at time.Time) error
	DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListFailedServicesSince(ctx context.Context, cutoff time.Time) ([]string, error)
	Ping(ctx context.Context) error
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or the fallback when nil.
func Deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
