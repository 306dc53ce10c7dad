// Package tokens issues and redeems single-use completion links.
package tokens

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"adr-workers/internal/common/database"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
)

const tokenBytes = 16

type Config struct {
	PublicURL      string
	CompletionPath string
	TTL            time.Duration
}

// Issued is a freshly minted token together with its public link.
type Issued struct {
	Token     models.CompletionToken
	URL       string
	ExpiresAt time.Time
}

type Issuer struct {
	db     *sql.DB
	cfg    Config
	logger logger.Logger
	now    func() time.Time
	random func([]byte) (int, error)
}

func NewIssuer(db *sql.DB, cfg Config, log logger.Logger) *Issuer {
	return &Issuer{
		db:     db,
		cfg:    cfg,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		random: rand.Read,
	}
}

func (i *Issuer) newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := i.random(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// URL builds the public completion link for token.
func (i *Issuer) URL(token string) string {
	return strings.TrimRight(i.cfg.PublicURL, "/") + "/" + strings.Trim(i.cfg.CompletionPath, "/") + "/" + token
}

// Issue expires any pending token for the reservation and creates a new one,
// so at most one pending token exists per reservation. The reservation row is
// locked for the duration of the swap.
func (i *Issuer) Issue(ctx context.Context, reservationID int64, sentVia string) (*Issued, error) {
	value, err := i.newToken()
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	now := i.now()
	tok := models.CompletionToken{
		Token:         value,
		ReservationID: reservationID,
		Status:        models.TokenPending,
		ExpiresAt:     now.Add(i.cfg.TTL),
		SentVia:       sentVia,
		SentAt:        &now,
		CreatedAt:     now,
	}

	err = database.WithTx(ctx, i.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT participant_id FROM reservations WHERE id = $1 FOR UPDATE`, reservationID,
		).Scan(&tok.PersonID)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewReservationNotFoundError(reservationID)
		}
		if err != nil {
			return errors.NewQueryExecutionFailedError("lock reservation", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE completion_tokens SET status = 'expired' WHERE reservation_id = $1 AND status = 'pending'`,
			reservationID,
		); err != nil {
			return errors.NewQueryExecutionFailedError("expire pending tokens", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO completion_tokens (token, reservation_id, participant_id, status, expires_at, sent_via, sent_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			tok.Token, tok.ReservationID, tok.PersonID, string(tok.Status), tok.ExpiresAt, tok.SentVia, now, now,
		).Scan(&tok.ID)
		if err != nil {
			return errors.NewDatabaseInsertFailedError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("completion token issued", map[string]interface{}{
		"reservationId": reservationID,
		"tokenId":       tok.ID,
		"expiresAt":     tok.ExpiresAt,
	})

	return &Issued{Token: tok, URL: i.URL(tok.Token), ExpiresAt: tok.ExpiresAt}, nil
}

func (i *Issuer) lookup(ctx context.Context, value string) (*models.CompletionToken, error) {
	var (
		tok    models.CompletionToken
		status string
		sentAt sql.NullTime
		usedAt sql.NullTime
	)
	err := i.db.QueryRowContext(ctx, `
		SELECT id, token, reservation_id, participant_id, status, expires_at, sent_via, sent_at, used_at, created_at
		FROM completion_tokens WHERE token = $1`, value,
	).Scan(&tok.ID, &tok.Token, &tok.ReservationID, &tok.PersonID, &status, &tok.ExpiresAt,
		&tok.SentVia, &sentAt, &usedAt, &tok.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewTokenNotFoundError()
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("find completion token", err)
	}
	tok.Status = models.TokenStatus(status)
	if sentAt.Valid {
		tok.SentAt = &sentAt.Time
	}
	if usedAt.Valid {
		tok.UsedAt = &usedAt.Time
	}
	return &tok, nil
}

func (i *Issuer) check(tok *models.CompletionToken) error {
	switch {
	case tok.Status == models.TokenUsed:
		return errors.NewTokenUsedError()
	case tok.Status == models.TokenExpired, !i.now().Before(tok.ExpiresAt):
		return errors.NewTokenExpiredError()
	}
	return nil
}

// Validate returns the token if it is pending and not past its expiry.
func (i *Issuer) Validate(ctx context.Context, value string) (*models.CompletionToken, error) {
	tok, err := i.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if err := i.check(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Consume marks a valid token used. Exactly one concurrent caller wins; the
// rest get TOKEN_USED.
func (i *Issuer) Consume(ctx context.Context, value string) (*models.CompletionToken, error) {
	now := i.now()
	res, err := i.db.ExecContext(ctx, `
		UPDATE completion_tokens SET status = 'used', used_at = $2
		WHERE token = $1 AND status = 'pending' AND expires_at > $2`, value, now)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("consume completion token", err)
	}

	tok, err := i.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := i.check(tok); err != nil {
			return nil, err
		}
		return nil, errors.NewTokenUsedError()
	}
	return tok, nil
}
