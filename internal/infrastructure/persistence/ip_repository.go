package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/infrastructure/db"
)

type IPRepository struct {
	db *db.DB
}

func NewIPRepository(db *db.DB) *IPRepository {
	return &IPRepository{db: db}
}

func (r *IPRepository) GetRecord(ctx context.Context) (*domain.IPRecord, error) {
	query := `SELECT ipv4, ipv6, updated_at FROM ip_records WHERE id = $1`
	var ipv4, ipv6 sql.NullString
	var record domain.IPRecord
	err := r.db.QueryRowContext(ctx, query, domain.RecordID).Scan(&ipv4, &ipv6, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get IP record: %w", err)
	}
	record.IPv4 = nullToPtr(ipv4)
	record.IPv6 = nullToPtr(ipv6)
	return &record, nil
}

// UpsertRecord writes the singleton record inside one transaction. Nothing is
// written when the stored addresses already match.
func (r *IPRepository) UpsertRecord(ctx context.Context, ipv4, ipv6 *string, at time.Time) (domain.UpsertOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UpsertFailed, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var curV4, curV6 sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT ipv4, ipv6 FROM ip_records WHERE id = $1 FOR UPDATE`, domain.RecordID).
		Scan(&curV4, &curV6)

	outcome := domain.UpsertUpdated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query := `
			INSERT INTO ip_records (id, ipv4, ipv6, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET ipv4 = EXCLUDED.ipv4, ipv6 = EXCLUDED.ipv6, updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, domain.RecordID, ipv4, ipv6, at); err != nil {
			return domain.UpsertFailed, fmt.Errorf("failed to insert IP record: %w", err)
		}
		outcome = domain.UpsertCreated
	case err != nil:
		return domain.UpsertFailed, fmt.Errorf("failed to load IP record: %w", err)
	default:
		current := domain.IPRecord{IPv4: nullToPtr(curV4), IPv6: nullToPtr(curV6)}
		if current.Equal(ipv4, ipv6) {
			if err := tx.Commit(); err != nil {
				return domain.UpsertFailed, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return domain.UpsertUnchanged, nil
		}
		query := `UPDATE ip_records SET ipv4 = $1, ipv6 = $2, updated_at = $3 WHERE id = $4`
		if _, err := tx.ExecContext(ctx, query, ipv4, ipv6, at, domain.RecordID); err != nil {
			return domain.UpsertFailed, fmt.Errorf("failed to update IP record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertFailed, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

func (r *IPRepository) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ip_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count IP records: %w", err)
	}
	return n, nil
}

func (r *IPRepository) RecordFailure(ctx context.Context, serviceName string, at time.Time) error {
	query := `INSERT INTO failed_services (service_name, failed_at) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, serviceName, at); err != nil {
		return fmt.Errorf("failed to record failed service %s: %w", serviceName, err)
	}
	return nil
}

func (r *IPRepository) DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM failed_services WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge failed services: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *IPRepository) ListFailedServicesSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `SELECT DISTINCT service_name FROM failed_services WHERE failed_at >= $1`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed services: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan failed service row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failed services: %w", err)
	}
	return names, nil
}

func (r *IPRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullToPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
