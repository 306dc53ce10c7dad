// Package ledger records every attempted notification send.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/models"

	"github.com/google/uuid"
)

// Ledger is append-only. Append assigns ID and CreatedAt when unset.
type Ledger interface {
	Append(ctx context.Context, rec *models.DeliveryRecord) error
}

// prepare fills identity fields before the first sink sees the record so
// every sink stores the same ID.
func prepare(rec *models.DeliveryRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Append(ctx context.Context, rec *models.DeliveryRecord) error {
	prepare(rec)

	const query = `
		INSERT INTO delivery_log (id, event_name, channel, recipient, message, provider_ref,
			status, error, cost, reservation_id, participant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11, $12)`

	_, err := l.db.ExecContext(ctx, query,
		rec.ID, rec.EventName, rec.Channel, rec.Recipient, rec.Message, rec.ProviderRef,
		rec.Status, rec.Error, rec.Cost, rec.ReservationID, rec.PersonID, rec.CreatedAt,
	)
	if err != nil {
		metrics.LedgerAppendFailures.WithLabelValues("postgres").Inc()
		return fmt.Errorf("append delivery record: %w", err)
	}
	return nil
}

// Fanout writes to a primary ledger and best-effort mirrors. Only the
// primary's error is returned.
type Fanout struct {
	primary Ledger
	mirrors []Ledger
	logger  logger.Logger
}

func NewFanout(primary Ledger, log logger.Logger, mirrors ...Ledger) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: log}
}

func (f *Fanout) Append(ctx context.Context, rec *models.DeliveryRecord) error {
	prepare(rec)

	if err := f.primary.Append(ctx, rec); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Append(ctx, rec); err != nil {
			f.logger.Warn("delivery record mirror failed", map[string]interface{}{
				"recordId": rec.ID,
				"error":    err,
			})
		}
	}
	return nil
}
