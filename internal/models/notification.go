package models

import "time"

// Template is a notification template for one event on one channel.
type Template struct {
	ID        int64  `json:"id"`
	EventName string `json:"eventName"`
	Channel   string `json:"channel"` // sms | email
	Name      string `json:"name"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Enabled   bool   `json:"enabled"`
}

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// DeliveryRecord is one attempted send. Records are written once and never changed.
type DeliveryRecord struct {
	ID            string    `json:"id"`
	EventName     string    `json:"eventName"`
	Channel       string    `json:"channel"`
	Recipient     string    `json:"recipient"`
	Message       string    `json:"message"`
	ProviderRef   string    `json:"providerRef,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Cost          *float64  `json:"cost,omitempty"`
	ReservationID *int64    `json:"reservationId,omitempty"`
	PersonID      *int64    `json:"participantId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
