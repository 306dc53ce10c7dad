package models

import "time"

type TokenStatus string

const (
	TokenPending TokenStatus = "pending"
	TokenUsed    TokenStatus = "used"
	TokenExpired TokenStatus = "expired"
)

// CompletionToken lets a participant complete their own record out of band.
type CompletionToken struct {
	ID            int64       `json:"id"`
	Token         string      `json:"token"`
	ReservationID int64       `json:"reservationId"`
	PersonID      int64       `json:"participantId"`
	Status        TokenStatus `json:"status"`
	ExpiresAt     time.Time   `json:"expiresAt"`
	SentVia       string      `json:"sentVia,omitempty"`
	SentAt        *time.Time  `json:"sentAt,omitempty"`
	UsedAt        *time.Time  `json:"usedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
