// Package reservations handles course sign-ups, their status lifecycle and
// the notifications tied to it.
package reservations

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/identity"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"
	"adr-workers/internal/tokens"
)

type Store interface {
	Get(ctx context.Context, id int64) (*models.ReservationDetail, error)
	Courses(ctx context.Context, ids []int64) (map[int64]models.Course, error)
	Create(ctx context.Context, r *models.Reservation) error
	SetStatus(ctx context.Context, id int64, next models.ReservationStatus, at time.Time) (models.ReservationStatus, error)
}

type Resolver interface {
	Resolve(ctx context.Context, c identity.Contact) (*identity.Result, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req notify.Request) (*notify.Outcome, error)
}

type Issuer interface {
	Issue(ctx context.Context, reservationID int64, sentVia string) (*tokens.Issued, error)
}

// Broadcaster receives reservation events for live observers.
type Broadcaster interface {
	NotifyNewReservation(d *models.ReservationDetail)
	NotifyReservationUpdate(d *models.ReservationDetail, previous models.ReservationStatus)
}

type Service struct {
	store      Store
	resolver   Resolver
	dispatcher Dispatcher
	issuer     Issuer
	live       Broadcaster
	logger     logger.Logger
	now        func() time.Time
}

func NewService(store Store, resolver Resolver, d Dispatcher, issuer Issuer, live Broadcaster, log logger.Logger) *Service {
	return &Service{
		store:      store,
		resolver:   resolver,
		dispatcher: d,
		issuer:     issuer,
		live:       live,
		logger:     log,
		now:        time.Now,
	}
}

// SplitName splits a single "name" form field into first and last name. A
// missing last name becomes "-".
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], "-"
	}
	return parts[0], strings.Join(parts[1:], " ")
}

type SubmitInput struct {
	Contact   identity.Contact `json:"contact"`
	CourseIDs []int64          `json:"courseIds"`
	Source    string           `json:"source,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

type SubmitResult struct {
	Person        *models.Person       `json:"participant"`
	Created       bool                 `json:"participantIsNew"`
	MatchedBy     identity.MatchedBy   `json:"participantMatched,omitempty"`
	FieldsUpdated []string             `json:"fieldsUpdated"`
	Reservations  []models.Reservation `json:"reservations"`
	Notifications []*notify.Outcome    `json:"notifications"`
	Message       string               `json:"message"`
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Submit resolves the contact to one participant and creates a pending
// reservation per course. Notification failures never fail the submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	contact := in.Contact
	if err := contact.Validate(); err != nil {
		return nil, err
	}
	if contact.Email == "" {
		return nil, errors.NewValidationError(identity.FieldEmail, "is required")
	}
	ids := uniqueIDs(in.CourseIDs)
	if len(ids) == 0 {
		return nil, errors.NewValidationError("courseIds", "select at least one course")
	}

	courses, err := s.store.Courses(ctx, ids)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("load courses", err)
	}
	for _, id := range ids {
		c, ok := courses[id]
		if !ok {
			return nil, errors.NewValidationError("courseIds", fmt.Sprintf("unknown course %d", id))
		}
		if c.Status != models.CourseActive {
			return nil, errors.NewBusinessRuleError("Course is not open for reservations", fmt.Sprintf("courseId: %d, status: %s", id, c.Status))
		}
	}

	resolved, err := s.resolver.Resolve(ctx, contact)
	if err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = "website"
	}

	res := &SubmitResult{
		Person:        resolved.Person,
		Created:       resolved.Created,
		MatchedBy:     resolved.MatchedBy,
		FieldsUpdated: resolved.FieldsUpdated,
		Reservations:  make([]models.Reservation, 0, len(ids)),
		Notifications: make([]*notify.Outcome, 0, len(ids)),
	}

	for _, id := range ids {
		r := models.Reservation{
			PersonID:      resolved.Person.ID,
			CourseID:      id,
			Status:        models.ReservationPending,
			PaymentStatus: models.PaymentUnpaid,
			Notes:         in.Notes,
			Source:        source,
			CreatedAt:     s.now(),
		}
		if err := s.store.Create(ctx, &r); err != nil {
			return nil, errors.NewDatabaseInsertFailedError(err)
		}
		res.Reservations = append(res.Reservations, r)

		detail := &models.ReservationDetail{Reservation: r, Person: *resolved.Person, Course: courses[id]}
		if out := s.dispatch(ctx, notify.EventReservationSubmitted, detail, nil, nil); out != nil {
			res.Notifications = append(res.Notifications, out)
		}
		s.live.NotifyNewReservation(detail)
	}

	if resolved.Created {
		res.Message = fmt.Sprintf("Nowy uczestnik + %d rezerwacji", len(res.Reservations))
	} else {
		res.Message = fmt.Sprintf("Istniejący uczestnik (%s) + %d rezerwacji", resolved.MatchedBy, len(res.Reservations))
	}

	s.logger.Info("reservations submitted", map[string]interface{}{
		"participantId": resolved.Person.ID,
		"isNew":         resolved.Created,
		"matched":       string(resolved.MatchedBy),
		"reservations":  len(res.Reservations),
	})
	return res, nil
}

// dispatch sends event for d, logging rather than returning failures.
func (s *Service) dispatch(ctx context.Context, event string, d *models.ReservationDetail, extra notify.Vars, channels []notify.Channel) *notify.Outcome {
	vars := notify.ReservationVars(d)
	for k, v := range extra {
		vars[k] = v
	}
	id := d.Reservation.ID
	out, err := s.dispatcher.Dispatch(ctx, notify.Request{
		Event:         event,
		Recipient:     notify.RecipientOf(&d.Person),
		ReservationID: &id,
		Variables:     vars,
		Channels:      channels,
	})
	if err != nil {
		s.logger.Error("notification dispatch failed", map[string]interface{}{
			"event":         event,
			"reservationId": id,
			"error":         err,
		})
		return nil
	}
	return out
}

func (s *Service) get(ctx context.Context, id int64) (*models.ReservationDetail, error) {
	d, err := s.store.Get(ctx, id)
	if stderrors.Is(err, ErrNotFound) {
		return nil, errors.NewReservationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get reservation", err)
	}
	return d, nil
}

type StatusResult struct {
	Reservation  models.Reservation       `json:"reservation"`
	Previous     models.ReservationStatus `json:"previousStatus"`
	Changed      bool                     `json:"changed"`
	Notification *notify.Outcome          `json:"notification,omitempty"`
}

var statusEvents = map[models.ReservationStatus]string{
	models.ReservationConfirmed: notify.EventReservationConfirmed,
	models.ReservationPaid:      notify.EventReservationPaid,
}

// UpdateStatus moves the reservation forward. Setting the status it already
// has is a no-op without notifications.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*StatusResult, error) {
	next := models.ReservationStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return nil, errors.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	prev, err := s.store.SetStatus(ctx, id, next, s.now())
	var terr *TransitionError
	switch {
	case stderrors.Is(err, ErrNotFound):
		return nil, errors.NewReservationNotFoundError(id)
	case stderrors.As(err, &terr) && terr.From == terr.To:
		d, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		return &StatusResult{Reservation: d.Reservation, Previous: prev}, nil
	case terr != nil:
		return nil, errors.NewInvalidStatusTransitionError(string(terr.From), string(terr.To))
	case err != nil:
		return nil, errors.NewQueryExecutionFailedError("update reservation status", err)
	}

	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{Reservation: d.Reservation, Previous: prev, Changed: true}
	if event, ok := statusEvents[next]; ok {
		res.Notification = s.dispatch(ctx, event, d, nil, nil)
	}
	s.live.NotifyReservationUpdate(d, prev)

	s.logger.Info("reservation status changed", map[string]interface{}{
		"reservationId": id,
		"from":          string(prev),
		"to":            string(next),
	})
	return res, nil
}

type LinkResult struct {
	URL          string          `json:"url"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	Sent         map[string]bool `json:"sent"`
	Notification *notify.Outcome `json:"notification,omitempty"`
	Message      string          `json:"message"`
}

// SendCompletionLink issues a fresh completion token, invalidating any
// pending one, and sends the link over the chosen channels.
func (s *Service) SendCompletionLink(ctx context.Context, id int64, sendVia string) (*LinkResult, error) {
	channels, err := notify.ParseSendVia(sendVia)
	if err != nil {
		return nil, err
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	via := strings.ToLower(strings.TrimSpace(sendVia))
	if via == "" {
		via = string(notify.ChannelSMS)
	}
	issued, err := s.issuer.Issue(ctx, id, via)
	if err != nil {
		return nil, err
	}

	res := &LinkResult{
		URL:       issued.URL,
		ExpiresAt: issued.ExpiresAt,
		Sent:      map[string]bool{string(notify.ChannelSMS): false, string(notify.ChannelEmail): false},
	}
	res.Notification = s.dispatch(ctx, notify.EventCompletionLink, d, notify.Vars{
		"link":      issued.URL,
		"expiresAt": notify.FormatDate(issued.ExpiresAt),
	}, channels)

	msg := "Link wysłany"
	if res.Notification != nil {
		for _, a := range res.Notification.Attempts {
			if a.Audience == notify.AudienceClient && a.Status == notify.AttemptSent {
				res.Sent[string(a.Channel)] = true
			}
		}
	}
	for _, ch := range []notify.Channel{notify.ChannelSMS, notify.ChannelEmail} {
		if res.Sent[string(ch)] {
			msg += " " + string(ch)
		}
	}
	res.Message = msg
	return res, nil
}

// Notify re-sends a one-shot reservation notification.
func (s *Service) Notify(ctx context.Context, event string, id int64) (*notify.Outcome, error) {
	switch event {
	case notify.EventReservationSubmitted, notify.EventReservationConfirmed,
		notify.EventReservationPaid, notify.EventCourseReminder:
	default:
		return nil, errors.NewValidationError("event", fmt.Sprintf("%q is not a reservation event", event))
	}

	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	vars := notify.ReservationVars(d)
	rid := d.Reservation.ID
	return s.dispatcher.Dispatch(ctx, notify.Request{
		Event:         event,
		Recipient:     notify.RecipientOf(&d.Person),
		ReservationID: &rid,
		Variables:     vars,
	})
}
