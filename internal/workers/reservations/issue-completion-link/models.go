package issuecompletionlink

import (
	"time"

	"adr-workers/internal/common/validation"
)

type Input struct {
	ReservationID int64  `json:"reservationId"`
	SendVia       string `json:"sendVia,omitempty"`
}

type Output struct {
	CompletionURL string    `json:"completionUrl"`
	ExpiresAt     time.Time `json:"completionLinkExpiresAt"`
	SMSSent       bool      `json:"completionLinkSmsSent"`
	EmailSent     bool      `json:"completionLinkEmailSent"`
	Message       string    `json:"completionLinkMessage"`
}

var InputSchema = validation.JSONSchema{
	Type:     "object",
	Required: []string{"reservationId"},
	Properties: map[string]validation.Property{
		"reservationId": {Type: "integer", Minimum: validation.FloatPtr(1)},
		"sendVia":       {Type: "string", Enum: []string{"sms", "email", "both"}},
	},
	AdditionalProperties: true,
}
