package activatecertificate

import "adr-workers/internal/common/validation"

// Dates are YYYY-MM-DD process variables.
type Input struct {
	ParticipantID     int64  `json:"participantId"`
	CertificateNumber string `json:"certificateNumber"`
	IssueDate         string `json:"issueDate,omitempty"`
	ExpiryDate        string `json:"expiryDate"`
	Notes             string `json:"notes,omitempty"`
}

type Output struct {
	CertificateID int64  `json:"certificateId"`
	ExpiryDate    string `json:"certificateExpiryDate"`
	IsFirst       bool   `json:"certificateIsFirst"`
	Renewed       int64  `json:"certificatesRenewed"`
}

const datePattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`

var InputSchema = validation.JSONSchema{
	Type:     "object",
	Required: []string{"participantId", "certificateNumber", "expiryDate"},
	Properties: map[string]validation.Property{
		"participantId":     {Type: "integer", Minimum: validation.FloatPtr(1)},
		"certificateNumber": {Type: "string", MinLength: validation.IntPtr(1)},
		"issueDate":         {Type: "string", Pattern: datePattern},
		"expiryDate":        {Type: "string", Pattern: datePattern},
		"notes":             {Type: "string"},
	},
	AdditionalProperties: true,
}
