package models

import "time"

// Person is a canonical participant record.
type Person struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     string  `json:"phone"` // canonical 48XXXXXXXXX
	Email     string  `json:"email,omitempty"`
	PESEL     *string `json:"pesel,omitempty"`

	// Certificate snapshot, refreshed when a certificate is activated.
	HasCurrentCertificate *bool      `json:"hasCurrentAdr,omitempty"`
	CertificateNumber     *string    `json:"currentAdrNumber,omitempty"`
	CertificateExpiry     *time.Time `json:"currentAdrExpiry,omitempty"`

	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (p *Person) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
