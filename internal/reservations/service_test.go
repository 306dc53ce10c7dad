package reservations

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/identity"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"
	"adr-workers/internal/tokens"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	courses  map[int64]models.Course
	details  map[int64]*models.ReservationDetail
	nextID   int64
	createFn func(r *models.Reservation) error
}

func newMemStore() *memStore {
	return &memStore{
		courses: map[int64]models.Course{
			1: {ID: 1, CourseType: "podstawowy", StartDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Status: models.CourseActive},
			2: {ID: 2, CourseType: "cysterny", StartDate: time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC), Status: models.CourseActive},
			3: {ID: 3, CourseType: "klasa1", Status: models.CourseCancelled},
		},
		details: map[int64]*models.ReservationDetail{},
		nextID:  100,
	}
}

func (s *memStore) Get(_ context.Context, id int64) (*models.ReservationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) Courses(_ context.Context, ids []int64) (map[int64]models.Course, error) {
	out := map[int64]models.Course{}
	for _, id := range ids {
		if c, ok := s.courses[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, r *models.Reservation) error {
	if s.createFn != nil {
		if err := s.createFn(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.details[r.ID] = &models.ReservationDetail{Reservation: *r, Course: s.courses[r.CourseID]}
	return nil
}

func (s *memStore) SetStatus(_ context.Context, id int64, next models.ReservationStatus, at time.Time) (models.ReservationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[id]
	if !ok {
		return "", ErrNotFound
	}
	prev := d.Reservation.Status
	if !prev.CanTransitionTo(next) {
		return prev, &TransitionError{From: prev, To: next}
	}
	d.Reservation.Status = next
	if next == models.ReservationConfirmed {
		d.Reservation.ConfirmedAt = &at
	}
	return prev, nil
}

func (s *memStore) put(d models.ReservationDetail) {
	s.details[d.Reservation.ID] = &d
}

type stubResolver struct {
	result *identity.Result
	err    error
	calls  int
}

func (r *stubResolver) Resolve(_ context.Context, c identity.Contact) (*identity.Result, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type recordingDispatcher struct {
	mu        sync.Mutex
	requests  []notify.Request
	dispatchF func(req notify.Request) (*notify.Outcome, error)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req notify.Request) (*notify.Outcome, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.dispatchF != nil {
		return d.dispatchF(req)
	}
	return &notify.Outcome{Event: req.Event, Attempts: []notify.Attempt{
		{Channel: notify.ChannelSMS, Audience: notify.AudienceClient, Status: notify.AttemptSent},
		{Channel: notify.ChannelEmail, Audience: notify.AudienceClient, Status: notify.AttemptSent},
	}}, nil
}

func (d *recordingDispatcher) events() []string {
	var out []string
	for _, r := range d.requests {
		out = append(out, r.Event)
	}
	return out
}

type stubIssuer struct {
	issued  *tokens.Issued
	err     error
	sentVia string
}

func (i *stubIssuer) Issue(_ context.Context, id int64, sentVia string) (*tokens.Issued, error) {
	i.sentVia = sentVia
	if i.err != nil {
		return nil, i.err
	}
	return i.issued, nil
}

type liveEvent struct {
	name     string
	id       int64
	previous models.ReservationStatus
}

type recordingLive struct {
	events []liveEvent
}

func (l *recordingLive) NotifyNewReservation(d *models.ReservationDetail) {
	l.events = append(l.events, liveEvent{name: "new", id: d.Reservation.ID})
}

func (l *recordingLive) NotifyReservationUpdate(d *models.ReservationDetail, previous models.ReservationStatus) {
	l.events = append(l.events, liveEvent{name: "update", id: d.Reservation.ID, previous: previous})
}

type fixture struct {
	svc      *Service
	store    *memStore
	resolver *stubResolver
	disp     *recordingDispatcher
	issuer   *stubIssuer
	live     *recordingLive
}

func person() *models.Person {
	return &models.Person{ID: 7, FirstName: "Jan", LastName: "Kowalski", Phone: "48606646095", Email: "jan@x.pl"}
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    newMemStore(),
		resolver: &stubResolver{result: &identity.Result{Person: person(), MatchedBy: identity.MatchPhone, FieldsUpdated: []string{}}},
		disp:     &recordingDispatcher{},
		issuer:   &stubIssuer{},
		live:     &recordingLive{},
	}
	f.svc = NewService(f.store, f.resolver, f.disp, f.issuer, f.live, logger.NewTestLogger(t))
	f.svc.now = func() time.Time { return now }
	return f
}

func validInput(courses ...int64) SubmitInput {
	return SubmitInput{
		Contact:   identity.Contact{FirstName: "Jan", LastName: "Kowalski", Phone: "606 646 095", Email: "jan@x.pl"},
		CourseIDs: courses,
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"Jan Kowalski", "Jan", "Kowalski"},
		{"  Anna Maria  Nowak ", "Anna", "Maria Nowak"},
		{"Jan", "Jan", "-"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestService_SubmitCreatesOneReservationPerCourse(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), validInput(1, 2, 1))
	require.NoError(t, err)

	require.Len(t, res.Reservations, 2)
	for _, r := range res.Reservations {
		assert.Equal(t, int64(7), r.PersonID)
		assert.Equal(t, models.ReservationPending, r.Status)
		assert.Equal(t, models.PaymentUnpaid, r.PaymentStatus)
		assert.Equal(t, "website", r.Source)
	}
	assert.Equal(t, "Istniejący uczestnik (phone) + 2 rezerwacji", res.Message)
	assert.Equal(t, []string{notify.EventReservationSubmitted, notify.EventReservationSubmitted}, f.disp.events())
	assert.Equal(t, "ADR Podstawowy", f.disp.requests[0].Variables["course"])
	assert.Equal(t, "01.06.2026", f.disp.requests[0].Variables["startDate"])
	assert.Len(t, res.Notifications, 2)
	assert.Equal(t, []liveEvent{{name: "new", id: 101}, {name: "new", id: 102}}, f.live.events)
}

func TestService_SubmitNewParticipantMessage(t *testing.T) {
	f := newFixture(t)
	f.resolver.result = &identity.Result{Person: person(), Created: true, FieldsUpdated: []string{}}

	res, err := f.svc.Submit(context.Background(), validInput(1))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Nowy uczestnik + 1 rezerwacji", res.Message)
}

func TestService_SubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(in *SubmitInput)
		field string
		code  errors.ErrorCode
	}{
		{"bad phone", func(in *SubmitInput) { in.Contact.Phone = "12345" }, "phone", errors.ErrCodeValidationFailed},
		{"missing email", func(in *SubmitInput) { in.Contact.Email = "" }, "email", errors.ErrCodeValidationFailed},
		{"no courses", func(in *SubmitInput) { in.CourseIDs = nil }, "courseIds", errors.ErrCodeValidationFailed},
		{"unknown course", func(in *SubmitInput) { in.CourseIDs = []int64{99} }, "courseIds", errors.ErrCodeValidationFailed},
		{"cancelled course", func(in *SubmitInput) { in.CourseIDs = []int64{3} }, "", errors.ErrCodeBusinessRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput(1)
			tt.mut(&in)

			_, err := f.svc.Submit(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			if tt.field != "" {
				assert.Equal(t, tt.field, errors.Normalize(err).Field())
			}
			assert.Zero(t, f.resolver.calls)
			assert.Empty(t, f.disp.requests)
		})
	}
}

func TestService_SubmitNotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.disp.dispatchF = func(notify.Request) (*notify.Outcome, error) {
		return nil, stderrors.New("boom")
	}

	res, err := f.svc.Submit(context.Background(), validInput(1))
	require.NoError(t, err)
	assert.Len(t, res.Reservations, 1)
	assert.Empty(t, res.Notifications)
	assert.Len(t, f.live.events, 1)
}

func TestService_SubmitInsertFailure(t *testing.T) {
	f := newFixture(t)
	f.store.createFn = func(*models.Reservation) error { return stderrors.New("fk violation") }

	_, err := f.svc.Submit(context.Background(), validInput(1))
	assert.True(t, errors.Is(err, errors.ErrCodeDatabaseInsertFailed))
	assert.Empty(t, f.disp.requests)
}

func seeded(f *fixture, status models.ReservationStatus) int64 {
	f.store.put(models.ReservationDetail{
		Reservation: models.Reservation{ID: 5, PersonID: 7, CourseID: 1, Status: status},
		Person:      *person(),
		Course:      f.store.courses[1],
	})
	return 5
}

func TestService_UpdateStatusDispatchesEvent(t *testing.T) {
	tests := []struct {
		from  models.ReservationStatus
		to    string
		event string
	}{
		{models.ReservationPending, "confirmed", notify.EventReservationConfirmed},
		{models.ReservationConfirmed, "paid", notify.EventReservationPaid},
		{models.ReservationPaid, "completed", ""},
		{models.ReservationPending, "cancelled", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+tt.to, func(t *testing.T) {
			f := newFixture(t)
			id := seeded(f, tt.from)

			res, err := f.svc.UpdateStatus(context.Background(), id, tt.to)
			require.NoError(t, err)
			assert.True(t, res.Changed)
			assert.Equal(t, tt.from, res.Previous)
			assert.Equal(t, models.ReservationStatus(tt.to), res.Reservation.Status)

			if tt.event == "" {
				assert.Empty(t, f.disp.requests)
				assert.Nil(t, res.Notification)
			} else {
				assert.Equal(t, []string{tt.event}, f.disp.events())
				require.NotNil(t, f.disp.requests[0].ReservationID)
				assert.Equal(t, id, *f.disp.requests[0].ReservationID)
			}
			assert.Equal(t, []liveEvent{{name: "update", id: id, previous: tt.from}}, f.live.events)
		})
	}
}

func TestService_UpdateStatusRejectsBackwardsMove(t *testing.T) {
	f := newFixture(t)
	id := seeded(f, models.ReservationPaid)

	_, err := f.svc.UpdateStatus(context.Background(), id, "pending")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidStatusTransition))
	assert.Empty(t, f.disp.requests)
	assert.Empty(t, f.live.events)
}

func TestService_UpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	id := seeded(f, models.ReservationConfirmed)

	res, err := f.svc.UpdateStatus(context.Background(), id, "confirmed")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, f.disp.requests)
	assert.Empty(t, f.live.events)
}

func TestService_UpdateStatusErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), 404, "confirmed")
	assert.True(t, errors.Is(err, errors.ErrCodeReservationNotFound))

	_, err = f.svc.UpdateStatus(context.Background(), 404, "archived")
	assert.True(t, errors.Is(err, errors.ErrCodeValidationFailed))
}

func TestService_SendCompletionLink(t *testing.T) {
	f := newFixture(t)
	id := seeded(f, models.ReservationConfirmed)
	expires := now.Add(7 * 24 * time.Hour)
	f.issuer.issued = &tokens.Issued{URL: "https://adr-pomorze.pl/uzupelnij-dane/abc", ExpiresAt: expires}
	f.disp.dispatchF = func(req notify.Request) (*notify.Outcome, error) {
		return &notify.Outcome{Event: req.Event, Attempts: []notify.Attempt{
			{Channel: notify.ChannelEmail, Audience: notify.AudienceClient, Status: notify.AttemptSent},
		}}, nil
	}

	res, err := f.svc.SendCompletionLink(context.Background(), id, "Email")
	require.NoError(t, err)

	assert.Equal(t, "email", f.issuer.sentVia)
	assert.Equal(t, "https://adr-pomorze.pl/uzupelnij-dane/abc", res.URL)
	assert.Equal(t, expires, res.ExpiresAt)
	assert.Equal(t, map[string]bool{"sms": false, "email": true}, res.Sent)
	assert.Equal(t, "Link wysłany email", res.Message)

	require.Len(t, f.disp.requests, 1)
	req := f.disp.requests[0]
	assert.Equal(t, notify.EventCompletionLink, req.Event)
	assert.Equal(t, []notify.Channel{notify.ChannelEmail}, req.Channels)
	assert.Equal(t, "https://adr-pomorze.pl/uzupelnij-dane/abc", req.Variables["link"])
	assert.Equal(t, "17.05.2026", req.Variables["expiresAt"])
}

func TestService_SendCompletionLinkDefaultsToSMS(t *testing.T) {
	f := newFixture(t)
	id := seeded(f, models.ReservationConfirmed)
	f.issuer.issued = &tokens.Issued{URL: "u", ExpiresAt: now}

	_, err := f.svc.SendCompletionLink(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "sms", f.issuer.sentVia)
	assert.Equal(t, []notify.Channel{notify.ChannelSMS}, f.disp.requests[0].Channels)
}

func TestService_SendCompletionLinkErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendCompletionLink(context.Background(), 5, "fax")
	assert.True(t, errors.Is(err, errors.ErrCodeValidationFailed))

	_, err = f.svc.SendCompletionLink(context.Background(), 5, "sms")
	assert.True(t, errors.Is(err, errors.ErrCodeReservationNotFound))

	id := seeded(f, models.ReservationConfirmed)
	f.issuer.err = errors.NewQueryExecutionFailedError("lock reservation", stderrors.New("timeout"))
	_, err = f.svc.SendCompletionLink(context.Background(), id, "sms")
	assert.True(t, errors.Is(err, errors.ErrCodeQueryExecutionFailed))
	assert.Empty(t, f.disp.requests)
}

func TestService_Notify(t *testing.T) {
	f := newFixture(t)
	id := seeded(f, models.ReservationConfirmed)

	out, err := f.svc.Notify(context.Background(), notify.EventReservationConfirmed, id)
	require.NoError(t, err)
	assert.True(t, out.Delivered())
	assert.Equal(t, "Jan Kowalski", f.disp.requests[0].Recipient.Name)

	_, err = f.svc.Notify(context.Background(), notify.EventExpiry1m, id)
	assert.True(t, errors.Is(err, errors.ErrCodeValidationFailed))
}
