package identity

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"adr-workers/internal/models"

	"github.com/lib/pq"
)

var personColumns = []string{
	"id", "first_name", "last_name", "phone", "email", "pesel",
	"has_current_adr", "current_adr_number", "current_adr_expiry", "notes", "created_at", "updated_at",
}

// PersonColumns lists the participant columns read by ScanPerson, qualified
// with alias when it is non-empty.
func PersonColumns(alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	cols := make([]string, len(personColumns))
	for i, c := range personColumns {
		if c == "email" {
			cols[i] = "COALESCE(" + prefix + "email, '')"
			continue
		}
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

// PostgresStore reads and writes the participants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanPerson reads PersonColumns from row. lead receives any columns
// selected before them.
func ScanPerson(row rowScanner, lead ...interface{}) (*models.Person, error) {
	var (
		p       models.Person
		pesel   sql.NullString
		hasADR  sql.NullBool
		number  sql.NullString
		expiry  sql.NullTime
		updated sql.NullTime
	)
	dest := append(append([]interface{}{}, lead...), &p.ID, &p.FirstName, &p.LastName, &p.Phone, &p.Email, &pesel,
		&hasADR, &number, &expiry, &p.Notes, &p.CreatedAt, &updated)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if pesel.Valid {
		s := strings.TrimSpace(pesel.String)
		p.PESEL = &s
	}
	if hasADR.Valid {
		p.HasCurrentCertificate = &hasADR.Bool
	}
	if number.Valid {
		p.CertificateNumber = &number.String
	}
	if expiry.Valid {
		p.CertificateExpiry = &expiry.Time
	}
	if updated.Valid {
		p.UpdatedAt = &updated.Time
	}
	return &p, nil
}

func (s *PostgresStore) findOne(ctx context.Context, column, value string) (*models.Person, error) {
	query := fmt.Sprintf("SELECT %s FROM participants WHERE %s = $1 ORDER BY id LIMIT 1", PersonColumns(""), column)
	p, err := ScanPerson(s.db.QueryRowContext(ctx, query, value))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) FindByNationalID(ctx context.Context, nationalID string) (*models.Person, error) {
	return s.findOne(ctx, "pesel", nationalID)
}

func (s *PostgresStore) FindByPhone(ctx context.Context, phone string) (*models.Person, error) {
	return s.findOne(ctx, "phone", phone)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	return s.findOne(ctx, "email", email)
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Person, error) {
	query := fmt.Sprintf("SELECT %s FROM participants WHERE id = $1", PersonColumns(""))
	p, err := ScanPerson(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Person) error {
	const query = `
		INSERT INTO participants (first_name, last_name, phone, email, pesel,
			has_current_adr, current_adr_number, notes, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		p.FirstName, p.LastName, p.Phone, p.Email, p.PESEL,
		p.HasCurrentCertificate, p.CertificateNumber, p.Notes, p.CreatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) Update(ctx context.Context, id int64, u PersonUpdate) error {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.NationalID != nil {
		add("pesel", *u.NationalID)
	}
	if u.HasCurrentCertificate != nil {
		add("has_current_adr", *u.HasCurrentCertificate)
	}
	if u.CertificateNumber != nil {
		add("current_adr_number", *u.CertificateNumber)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", u.UpdatedAt)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE participants SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}
