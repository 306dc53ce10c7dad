package sendreservationnotification

import (
	"context"
	"testing"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	event   string
	id      int64
	outcome *notify.Outcome
	err     error
}

func (s *stubNotifier) Notify(_ context.Context, event string, id int64) (*notify.Outcome, error) {
	s.event, s.id = event, id
	return s.outcome, s.err
}

func attempt(ch notify.Channel, status notify.AttemptStatus, errMsg string) notify.Attempt {
	return notify.Attempt{Channel: ch, Audience: notify.AudienceClient, Status: status, Error: errMsg}
}

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name     string
		attempts []notify.Attempt
		want     Output
	}{
		{
			name:     "all sent",
			attempts: []notify.Attempt{attempt(notify.ChannelSMS, notify.AttemptSent, ""), attempt(notify.ChannelEmail, notify.AttemptSent, "")},
			want:     Output{Event: notify.EventReservationPaid, Status: "sent", Sent: 2, Delivered: true},
		},
		{
			name:     "email failed",
			attempts: []notify.Attempt{attempt(notify.ChannelSMS, notify.AttemptSent, ""), attempt(notify.ChannelEmail, notify.AttemptFailed, "smtp down")},
			want:     Output{Event: notify.EventReservationPaid, Status: "partial", Sent: 1, Failed: 1},
		},
		{
			name:     "no contact channel",
			attempts: []notify.Attempt{{Channel: notify.ChannelEmail, Audience: notify.AudienceClient, Status: notify.AttemptSkipped}},
			want:     Output{Event: notify.EventReservationPaid, Status: "skipped"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &stubNotifier{outcome: &notify.Outcome{Event: notify.EventReservationPaid, Attempts: tt.attempts}}
			h := NewHandler(nil, n, logger.NewTestLogger(t))

			out, err := h.Execute(context.Background(), &Input{ReservationID: 9, Event: notify.EventReservationPaid})
			require.NoError(t, err)
			assert.Equal(t, tt.want, *out)
			assert.Equal(t, int64(9), n.id)
			assert.Equal(t, notify.EventReservationPaid, n.event)
		})
	}
}

func TestHandler_Execute_AllFailed(t *testing.T) {
	n := &stubNotifier{outcome: &notify.Outcome{Attempts: []notify.Attempt{
		attempt(notify.ChannelSMS, notify.AttemptFailed, "gateway 500"),
		attempt(notify.ChannelEmail, notify.AttemptFailed, "smtp down"),
	}}}
	h := NewHandler(nil, n, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{ReservationID: 9, Event: notify.EventCourseReminder})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotificationSendFailed))
	assert.Contains(t, err.Error(), "sms: gateway 500")
	assert.Equal(t, 0, errors.ConvertToBPMNError(errors.Normalize(err)).Retries)
}

func TestHandler_Execute_NotFound(t *testing.T) {
	n := &stubNotifier{err: errors.NewReservationNotFoundError(9)}
	h := NewHandler(nil, n, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{ReservationID: 9, Event: notify.EventReservationConfirmed})
	assert.Equal(t, "RESERVATION_NOT_FOUND", errors.ConvertToBPMNError(errors.Normalize(err)).Code)
}

func TestInputSchema(t *testing.T) {
	var in Input
	require.NoError(t, validation.DecodeVariables(`{"reservationId":3,"event":"reservation_paid","amount":900}`, InputSchema, &in))
	assert.Equal(t, Input{ReservationID: 3, Event: "reservation_paid"}, in)

	err := validation.DecodeVariables(`{"reservationId":3,"event":"expiry_6m"}`, InputSchema, &in)
	assert.Equal(t, "event", errors.Normalize(err).Field())

	err = validation.DecodeVariables(`{"reservationId":0,"event":"reservation_paid"}`, InputSchema, &in)
	assert.Equal(t, "reservationId", errors.Normalize(err).Field())
}
