package models

import "time"

type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateRenewed CertificateStatus = "renewed"
	CertificateExpired CertificateStatus = "expired"
)

// Certificate is an ADR certificate held by a Person. New rows start with
// every reminder marker unset.
type Certificate struct {
	ID             int64             `json:"id"`
	PersonID       int64             `json:"participantId"`
	Number         string            `json:"certificateNumber"`
	IssueDate      *time.Time        `json:"issueDate,omitempty"`
	ExpiryDate     time.Time         `json:"expiryDate"`
	Status         CertificateStatus `json:"status"`
	Reminder6mSent bool              `json:"reminder6mSent"`
	Reminder3mSent bool              `json:"reminder3mSent"`
	Reminder1mSent bool              `json:"reminder1mSent"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      *time.Time        `json:"updatedAt,omitempty"`
}

// CertificateHolder pairs a certificate with the person it belongs to.
type CertificateHolder struct {
	Certificate Certificate
	Person      Person
}
