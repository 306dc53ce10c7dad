package certificates

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"adr-workers/internal/common/database"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
	"adr-workers/internal/reminders"
)

type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyWarning  Urgency = "warning"
	UrgencyInfo     Urgency = "info"
)

func UrgencyFor(daysUntilExpiry int) Urgency {
	switch {
	case daysUntilExpiry <= 30:
		return UrgencyCritical
	case daysUntilExpiry <= 90:
		return UrgencyWarning
	default:
		return UrgencyInfo
	}
}

type ActivateInput struct {
	PersonID   int64      `json:"participantId"`
	Number     string     `json:"certificateNumber"`
	IssueDate  *time.Time `json:"issueDate,omitempty"`
	ExpiryDate time.Time  `json:"expiryDate"`
	Notes      string     `json:"notes,omitempty"`
}

func (in *ActivateInput) Validate() error {
	in.Number = strings.TrimSpace(in.Number)
	switch {
	case in.PersonID <= 0:
		return errors.NewValidationError("participantId", "is required")
	case in.Number == "":
		return errors.NewValidationError("certificateNumber", "is required")
	case in.ExpiryDate.IsZero():
		return errors.NewValidationError("expiryDate", "is required")
	case in.IssueDate != nil && !in.IssueDate.Before(in.ExpiryDate):
		return errors.NewValidationError("issueDate", "must be before expiryDate")
	}
	return nil
}

type ActivateResult struct {
	Certificate models.Certificate `json:"certificate"`
	IsFirst     bool               `json:"isFirst"`
	Renewed     int64              `json:"renewed"`
}

type Expiring struct {
	models.CertificateHolder
	DaysUntilExpiry int     `json:"daysUntilExpiry"`
	Urgency         Urgency `json:"urgency"`
}

type Service struct {
	db     *sql.DB
	loc    *time.Location
	logger logger.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, loc *time.Location, log logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:     db,
		loc:    loc,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Activate records a new active certificate for a person. Every previously
// active certificate becomes renewed in the same transaction, so a person
// never has two active certificates. The new row starts with all reminder
// markers unset.
func (s *Service) Activate(ctx context.Context, in ActivateInput) (*ActivateResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	res := &ActivateResult{Certificate: models.Certificate{
		PersonID:   in.PersonID,
		Number:     in.Number,
		IssueDate:  in.IssueDate,
		ExpiryDate: in.ExpiryDate,
		Status:     models.CertificateActive,
		Notes:      in.Notes,
		CreatedAt:  now,
	}}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var lockedID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM participants WHERE id = $1 FOR UPDATE`, in.PersonID).Scan(&lockedID)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewPersonNotFoundError(in.PersonID)
		}
		if err != nil {
			return errors.NewQueryExecutionFailedError("lock participant", err)
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM adr_certificates WHERE participant_id = $1`, in.PersonID,
		).Scan(&existing); err != nil {
			return errors.NewQueryExecutionFailedError("count certificates", err)
		}
		res.IsFirst = existing == 0

		renewed, err := tx.ExecContext(ctx,
			`UPDATE adr_certificates SET status = 'renewed', updated_at = $2 WHERE participant_id = $1 AND status = 'active'`,
			in.PersonID, now)
		if err != nil {
			return errors.NewQueryExecutionFailedError("renew certificates", err)
		}
		res.Renewed, _ = renewed.RowsAffected()

		if err := tx.QueryRowContext(ctx, `
			INSERT INTO adr_certificates (participant_id, certificate_number, issue_date, expiry_date, status, notes, created_at)
			VALUES ($1, $2, $3, $4, 'active', $5, $6)
			RETURNING id`,
			in.PersonID, in.Number, in.IssueDate, in.ExpiryDate.Format("2006-01-02"), in.Notes, now,
		).Scan(&res.Certificate.ID); err != nil {
			return errors.NewDatabaseInsertFailedError(err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE participants
			SET has_current_adr = TRUE, current_adr_number = $2, current_adr_expiry = $3, updated_at = $4
			WHERE id = $1`,
			in.PersonID, in.Number, in.ExpiryDate.Format("2006-01-02"), now,
		); err != nil {
			return errors.NewQueryExecutionFailedError("update certificate snapshot", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("certificate activated", map[string]interface{}{
		"participantId": in.PersonID,
		"certificateId": res.Certificate.ID,
		"renewed":       res.Renewed,
		"isFirst":       res.IsFirst,
	})
	return res, nil
}

// Expiring lists active certificates expiring within the next months,
// most urgent first.
func (s *Service) Expiring(ctx context.Context, months int, today time.Time) ([]Expiring, error) {
	if months <= 0 {
		months = 6
	}
	if today.IsZero() {
		today = s.now()
	}
	from := reminders.Day(today, s.loc)

	holders, err := s.ActiveExpiringBetween(ctx, from, from.AddDate(0, months, 0))
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list expiring certificates", err)
	}

	out := make([]Expiring, 0, len(holders))
	for _, h := range holders {
		days := reminders.DaysUntil(from, h.Certificate.ExpiryDate, s.loc)
		out = append(out, Expiring{CertificateHolder: h, DaysUntilExpiry: days, Urgency: UrgencyFor(days)})
	}
	return out, nil
}

// ExpireOverdue demotes active certificates that expired before today and
// clears the holders' current-certificate flag.
func (s *Service) ExpireOverdue(ctx context.Context, today time.Time) (int64, error) {
	if today.IsZero() {
		today = s.now()
	}
	day := reminders.Day(today, s.loc).Format("2006-01-02")

	res, err := s.db.ExecContext(ctx, `
		WITH expired AS (
			UPDATE adr_certificates SET status = 'expired', updated_at = $2
			WHERE status = 'active' AND expiry_date < $1
			RETURNING participant_id
		)
		UPDATE participants SET has_current_adr = FALSE, updated_at = $2
		WHERE id IN (SELECT participant_id FROM expired)`, day, s.now())
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("expire overdue certificates", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("certificates expired", map[string]interface{}{"count": n, "before": day})
	}
	return n, nil
}
