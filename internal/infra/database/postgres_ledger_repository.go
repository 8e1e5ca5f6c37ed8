// internal/infra/database/postgres_ledger_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"maintenance_scheduler/internal/domain/ledger"
)

const createLedgerTable = `CREATE TABLE IF NOT EXISTS sent_notifications (
    client_id              TEXT PRIMARY KEY,
    last_notification_sent DATE NOT NULL,
    last_maintenance_date  DATE NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresLedgerRepository stores one ledger row per client.
type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (r *PostgresLedgerRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createLedgerTable); err != nil {
		return fmt.Errorf("error creating sent_notifications table: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepository) Get(ctx context.Context, clientID string) (*ledger.Record, error) {
	query := `SELECT last_notification_sent, last_maintenance_date FROM sent_notifications WHERE client_id = $1`
	var sent, maint time.Time
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(&sent, &maint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting ledger record: %w", err)
	}
	rec := toRecord(sent, maint)
	return &rec, nil
}

func (r *PostgresLedgerRepository) List(ctx context.Context) (map[string]ledger.Record, error) {
	query := `SELECT client_id, last_notification_sent, last_maintenance_date FROM sent_notifications`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing ledger records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ledger.Record)
	for rows.Next() {
		var id string
		var sent, maint time.Time
		if err := rows.Scan(&id, &sent, &maint); err != nil {
			return nil, fmt.Errorf("error scanning ledger record: %w", err)
		}
		out[id] = toRecord(sent, maint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger records: %w", err)
	}
	return out, nil
}

func (r *PostgresLedgerRepository) Upsert(ctx context.Context, clientID string, rec ledger.Record) error {
	query := `INSERT INTO sent_notifications (client_id, last_notification_sent, last_maintenance_date, updated_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (client_id) DO UPDATE
               SET last_notification_sent = EXCLUDED.last_notification_sent,
                   last_maintenance_date = EXCLUDED.last_maintenance_date,
                   updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, clientID, rec.LastNotificationSent, rec.LastMaintenanceDate)
	if err != nil {
		return fmt.Errorf("error upserting ledger record for %s: %w", clientID, err)
	}
	return nil
}

// DATE columns come back as midnight UTC; format without converting.
func toRecord(sent, maint time.Time) ledger.Record {
	return ledger.Record{
		LastNotificationSent: sent.Format(ledger.DateLayout),
		LastMaintenanceDate:  maint.Format(ledger.DateLayout),
	}
}
