package sendreservationnotification

import (
	"adr-workers/internal/common/validation"
	"adr-workers/internal/notify"
)

type Input struct {
	ReservationID int64  `json:"reservationId"`
	Event         string `json:"event"`
}

type Output struct {
	Event     string `json:"notificationEvent"`
	Status    string `json:"notificationStatus"` // sent, partial, skipped
	Sent      int    `json:"notificationsSent"`
	Failed    int    `json:"notificationsFailed"`
	Delivered bool   `json:"notificationDelivered"`
}

var InputSchema = validation.JSONSchema{
	Type:     "object",
	Required: []string{"reservationId", "event"},
	Properties: map[string]validation.Property{
		"reservationId": {Type: "integer", Minimum: validation.FloatPtr(1)},
		"event": {Type: "string", Enum: []string{
			notify.EventReservationSubmitted,
			notify.EventReservationConfirmed,
			notify.EventReservationPaid,
			notify.EventCourseReminder,
		}},
	},
	AdditionalProperties: true,
}
