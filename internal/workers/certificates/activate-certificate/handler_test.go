package activatecertificate

import (
	"context"
	"testing"
	"time"

	"adr-workers/internal/certificates"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/validation"
	"adr-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubActivator struct {
	calls int
	got   certificates.ActivateInput
	res   *certificates.ActivateResult
	err   error
}

func (s *stubActivator) Activate(_ context.Context, in certificates.ActivateInput) (*certificates.ActivateResult, error) {
	s.calls++
	s.got = in
	return s.res, s.err
}

func TestHandler_Execute(t *testing.T) {
	expiry := time.Date(2031, 4, 30, 0, 0, 0, 0, time.UTC)
	a := &stubActivator{res: &certificates.ActivateResult{
		Certificate: models.Certificate{ID: 77, PersonID: 5, ExpiryDate: expiry},
		Renewed:     1,
	}}
	h := NewHandler(nil, a, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		ParticipantID:     5,
		CertificateNumber: "ADR/2026/0142",
		IssueDate:         "2026-04-30",
		ExpiryDate:        "2031-04-30",
	})
	require.NoError(t, err)

	assert.Equal(t, Output{CertificateID: 77, ExpiryDate: "2031-04-30", Renewed: 1}, *out)
	assert.Equal(t, int64(5), a.got.PersonID)
	assert.Equal(t, expiry, a.got.ExpiryDate)
	require.NotNil(t, a.got.IssueDate)
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), *a.got.IssueDate)
}

func TestHandler_Execute_InvalidDates(t *testing.T) {
	tests := []struct {
		name      string
		input     Input
		wantField string
	}{
		{name: "impossible expiry", input: Input{ParticipantID: 5, CertificateNumber: "X", ExpiryDate: "2031-02-30"}, wantField: "expiryDate"},
		{name: "impossible issue", input: Input{ParticipantID: 5, CertificateNumber: "X", ExpiryDate: "2031-02-28", IssueDate: "2026-13-01"}, wantField: "issueDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubActivator{}
			h := NewHandler(nil, a, logger.NewTestLogger(t))

			_, err := h.Execute(context.Background(), &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantField, errors.Normalize(err).Field())
			assert.Zero(t, a.calls)
		})
	}
}

func TestHandler_Execute_PersonNotFound(t *testing.T) {
	a := &stubActivator{err: errors.NewPersonNotFoundError(5)}
	h := NewHandler(nil, a, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{ParticipantID: 5, CertificateNumber: "X", ExpiryDate: "2031-02-28"})
	assert.Equal(t, "PERSON_NOT_FOUND", errors.ConvertToBPMNError(errors.Normalize(err)).Code)
}

func TestInputSchema(t *testing.T) {
	var in Input
	err := validation.DecodeVariables(`{"participantId":5,"expiryDate":"2031-02-28"}`, InputSchema, &in)
	assert.Equal(t, "certificateNumber", errors.Normalize(err).Field())

	require.NoError(t, validation.DecodeVariables(`{"participantId":5,"certificateNumber":"X","expiryDate":"2031-02-28"}`, InputSchema, &in))
	assert.Equal(t, "X", in.CertificateNumber)
}
