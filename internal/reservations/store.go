package reservations

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"adr-workers/internal/common/database"
	"adr-workers/internal/identity"
	"adr-workers/internal/models"

	"github.com/lib/pq"
)

var ErrNotFound = stderrors.New("reservations: not found")

const detailColumns = `r.id, r.participant_id, r.course_id, r.status, r.payment_status, r.notes, r.source,
	r.confirmed_at, r.paid_at, r.created_at, r.updated_at,
	c.id, c.course_type, c.start_date, c.end_date, c.location, c.price, c.max_participants, c.status`

const courseColumns = `id, course_type, start_date, end_date, location, price, max_participants, status`

var attendingStatuses = []string{
	string(models.ReservationConfirmed),
	string(models.ReservationPaid),
	string(models.ReservationCompleted),
}

// PostgresStore reads reservations joined with their participant and course.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDetail(row scanner) (*models.ReservationDetail, error) {
	var (
		d         models.ReservationDetail
		status    string
		confirmed sql.NullTime
		paid      sql.NullTime
		updated   sql.NullTime
		price     sql.NullFloat64
	)
	r := &d.Reservation
	c := &d.Course
	p, err := identity.ScanPerson(row,
		&r.ID, &r.PersonID, &r.CourseID, &status, &r.PaymentStatus, &r.Notes, &r.Source,
		&confirmed, &paid, &r.CreatedAt, &updated,
		&c.ID, &c.CourseType, &c.StartDate, &c.EndDate, &c.Location, &price, &c.MaxParticipants, &c.Status,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)
	if confirmed.Valid {
		r.ConfirmedAt = &confirmed.Time
	}
	if paid.Valid {
		r.PaidAt = &paid.Time
	}
	if updated.Valid {
		r.UpdatedAt = &updated.Time
	}
	if price.Valid {
		c.Price = &price.Float64
	}
	d.Person = *p
	return &d, nil
}

func (s *PostgresStore) queryDetails(ctx context.Context, where string, args ...interface{}) ([]models.ReservationDetail, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM reservations r
		JOIN courses c ON c.id = r.course_id
		JOIN participants p ON p.id = r.participant_id
		WHERE %s
		ORDER BY r.id`, detailColumns, identity.PersonColumns("p"), where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReservationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.ReservationDetail, error) {
	rows, err := s.queryDetails(ctx, "r.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ReservationsStarting lists attending reservations on active courses that
// start on day.
func (s *PostgresStore) ReservationsStarting(ctx context.Context, day time.Time) ([]models.ReservationDetail, error) {
	return s.queryDetails(ctx, "c.start_date = $1 AND c.status = $2 AND r.status = ANY($3)",
		day.Format("2006-01-02"), models.CourseActive, pq.Array(attendingStatuses))
}

// Courses loads the courses with the given ids. Unknown ids are absent from
// the result.
func (s *PostgresStore) Courses(ctx context.Context, ids []int64) (map[int64]models.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+courseColumns+" FROM courses WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]models.Course, len(ids))
	for rows.Next() {
		var (
			c     models.Course
			price sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.CourseType, &c.StartDate, &c.EndDate, &c.Location, &price, &c.MaxParticipants, &c.Status); err != nil {
			return nil, err
		}
		if price.Valid {
			c.Price = &price.Float64
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Reservation) error {
	return s.db.QueryRowContext(ctx, `
		INSERT INTO reservations (participant_id, course_id, status, payment_status, notes, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		r.PersonID, r.CourseID, string(r.Status), r.PaymentStatus, r.Notes, r.Source, r.CreatedAt,
	).Scan(&r.ID)
}

// SetStatus writes next and the timestamps that go with it under a row lock.
// It returns the status the row held before the update.
func (s *PostgresStore) SetStatus(ctx context.Context, id int64, next models.ReservationStatus, at time.Time) (models.ReservationStatus, error) {
	var prev models.ReservationStatus
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if stderrors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		prev = models.ReservationStatus(current)
		if !prev.CanTransitionTo(next) {
			return &TransitionError{From: prev, To: next}
		}

		query := `UPDATE reservations SET status = $2, updated_at = $3`
		switch next {
		case models.ReservationConfirmed:
			query += `, confirmed_at = $3`
		case models.ReservationPaid:
			query += `, paid_at = $3, payment_status = 'paid'`
		}
		_, err = tx.ExecContext(ctx, query+` WHERE id = $1`, id, string(next), at)
		return err
	})
	return prev, err
}

type TransitionError struct {
	From, To models.ReservationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reservations: cannot move from %s to %s", e.From, e.To)
}
