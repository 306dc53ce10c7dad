package notify

import (
	"strings"

	"adr-workers/internal/common/errors"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

const (
	EventReservationSubmitted = "reservation_submitted"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationPaid      = "reservation_paid"
	EventCourseReminder       = "course_reminder"
	EventCompletionLink       = "completion_link"
	EventExpiry6m             = "adr_expiry_6m"
	EventExpiry3m             = "adr_expiry_3m"
	EventExpiry1m             = "adr_expiry_1m"

	// Template-only event used for the admin copy of a submission.
	EventAdminNewReservation = "admin_new_reservation"
)

type Audience string

const (
	AudienceClient Audience = "client"
	AudienceAdmins Audience = "admins"
)

// Route is one channel delivery mandated for an event. Template overrides
// the event name used for the template lookup.
type Route struct {
	Channel  Channel
	Audience Audience
	Template string
}

func (r Route) templateEvent(event string) string {
	if r.Template != "" {
		return r.Template
	}
	return event
}

var (
	smsAndEmail = []Route{{Channel: ChannelSMS}, {Channel: ChannelEmail}}

	policy = map[string][]Route{
		EventReservationSubmitted: {
			{Channel: ChannelSMS},
			{Channel: ChannelEmail},
			{Channel: ChannelEmail, Audience: AudienceAdmins, Template: EventAdminNewReservation},
			{Channel: ChannelSMS, Audience: AudienceAdmins, Template: EventAdminNewReservation},
		},
		EventReservationConfirmed: smsAndEmail,
		EventReservationPaid:      smsAndEmail,
		EventCourseReminder:       smsAndEmail,
		EventCompletionLink:       smsAndEmail,
		EventExpiry6m:             {{Channel: ChannelEmail}},
		EventExpiry3m:             smsAndEmail,
		EventExpiry1m:             {{Channel: ChannelSMS}},
	}
)

// Routes returns the channel policy for event.
func Routes(event string) ([]Route, bool) {
	routes, ok := policy[event]
	if !ok {
		return nil, false
	}
	out := make([]Route, len(routes))
	for i, r := range routes {
		if r.Audience == "" {
			r.Audience = AudienceClient
		}
		out[i] = r
	}
	return out, true
}

// ParseSendVia maps "sms", "email" or "both" to a channel filter. An empty
// value means sms.
func ParseSendVia(sendVia string) ([]Channel, error) {
	switch strings.ToLower(strings.TrimSpace(sendVia)) {
	case "sms", "":
		return []Channel{ChannelSMS}, nil
	case "email":
		return []Channel{ChannelEmail}, nil
	case "both":
		return []Channel{ChannelSMS, ChannelEmail}, nil
	}
	return nil, errors.NewValidationError("sendVia", "must be sms, email or both")
}
