package resolveparticipant

import (
	"adr-workers/internal/common/validation"
	"adr-workers/internal/identity"
)

type Input struct {
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	Phone                 string  `json:"phone"`
	Email                 string  `json:"email,omitempty"`
	PESEL                 *string `json:"pesel,omitempty"`
	HasCurrentCertificate *bool   `json:"hasCurrentCertificate,omitempty"`
	CertificateNumber     *string `json:"certificateNumber,omitempty"`
	Notes                 string  `json:"notes,omitempty"`
}

func (in *Input) contact() identity.Contact {
	return identity.Contact{
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Phone:                 in.Phone,
		Email:                 in.Email,
		NationalID:            in.PESEL,
		HasCurrentCertificate: in.HasCurrentCertificate,
		CertificateNumber:     in.CertificateNumber,
		Notes:                 in.Notes,
	}
}

type Output struct {
	ParticipantID    int64    `json:"participantId"`
	ParticipantIsNew bool     `json:"participantIsNew"`
	MatchedBy        string   `json:"matchedBy,omitempty"`
	FieldsUpdated    []string `json:"fieldsUpdated"`
	Phone            string   `json:"participantPhone"`
	Email            string   `json:"participantEmail,omitempty"`
}

// InputSchema describes the process variables this worker reads. Other
// variables in scope are ignored.
var InputSchema = validation.JSONSchema{
	Type:     "object",
	Required: []string{"firstName", "lastName", "phone"},
	Properties: map[string]validation.Property{
		"firstName":             {Type: "string", MinLength: validation.IntPtr(1)},
		"lastName":              {Type: "string", MinLength: validation.IntPtr(1)},
		"phone":                 {Type: "string", MinLength: validation.IntPtr(9)},
		"email":                 {Type: "string"},
		"pesel":                 {Type: "string", Pattern: `^[0-9]{11}$`},
		"hasCurrentCertificate": {Type: "boolean"},
		"certificateNumber":     {Type: "string"},
		"notes":                 {Type: "string"},
	},
	AdditionalProperties: true,
}
