// Package certificates manages ADR certificates and their reminder markers.
package certificates

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adr-workers/internal/identity"
	"adr-workers/internal/models"
)

const certificateColumns = `c.id, c.participant_id, c.certificate_number, c.issue_date, c.expiry_date, c.status,
	c.reminder_6m_sent, c.reminder_3m_sent, c.reminder_1m_sent, c.notes, c.created_at, c.updated_at`

var markerColumns = map[string]string{
	"6m": "reminder_6m_sent",
	"3m": "reminder_3m_sent",
	"1m": "reminder_1m_sent",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHolder(row scanner) (*models.CertificateHolder, error) {
	var (
		h       models.CertificateHolder
		status  string
		issued  sql.NullTime
		updated sql.NullTime
	)
	c := &h.Certificate
	p, err := identity.ScanPerson(row,
		&c.ID, &c.PersonID, &c.Number, &issued, &c.ExpiryDate, &status,
		&c.Reminder6mSent, &c.Reminder3mSent, &c.Reminder1mSent, &c.Notes, &c.CreatedAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	c.Status = models.CertificateStatus(status)
	if issued.Valid {
		c.IssueDate = &issued.Time
	}
	if updated.Valid {
		c.UpdatedAt = &updated.Time
	}
	h.Person = *p
	return &h, nil
}

func (s *Service) queryHolders(ctx context.Context, where string, args ...interface{}) ([]models.CertificateHolder, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM adr_certificates c
		JOIN participants p ON p.id = c.participant_id
		WHERE %s
		ORDER BY c.expiry_date, c.id`, certificateColumns, identity.PersonColumns("p"), where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CertificateHolder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// ActiveExpiringBetween returns active certificates with from <= expiry <= to.
func (s *Service) ActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]models.CertificateHolder, error) {
	return s.queryHolders(ctx, "c.status = 'active' AND c.expiry_date >= $1 AND c.expiry_date <= $2",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// MarkReminderSent sets one threshold marker and reports whether this call
// flipped it. Only one of several concurrent callers gets true.
func (s *Service) MarkReminderSent(ctx context.Context, certificateID int64, threshold string) (bool, error) {
	return s.setMarker(ctx, certificateID, threshold, true)
}

// ReleaseReminder clears a threshold marker so the next run retries it.
func (s *Service) ReleaseReminder(ctx context.Context, certificateID int64, threshold string) (bool, error) {
	return s.setMarker(ctx, certificateID, threshold, false)
}

func (s *Service) setMarker(ctx context.Context, certificateID int64, threshold string, value bool) (bool, error) {
	column, ok := markerColumns[threshold]
	if !ok {
		return false, fmt.Errorf("unknown reminder threshold %q", threshold)
	}

	set, was := "TRUE", "FALSE"
	if !value {
		set, was = was, set
	}
	query := fmt.Sprintf(`UPDATE adr_certificates SET %[1]s = %[2]s, updated_at = $2 WHERE id = $1 AND %[1]s = %[3]s`, column, set, was)
	res, err := s.db.ExecContext(ctx, query, certificateID, s.now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ForPerson lists a participant's certificates, newest expiry first.
func (s *Service) ForPerson(ctx context.Context, personID int64) ([]models.CertificateHolder, error) {
	list, err := s.queryHolders(ctx, "c.participant_id = $1", personID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}
