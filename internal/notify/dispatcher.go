// Package notify renders templates and delivers them over SMS and email.
package notify

import (
	"context"
	"fmt"
	"time"

	"adr-workers/internal/common/channels"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/ledger"
	"adr-workers/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Recipient struct {
	PersonID *int64
	Name     string
	Phone    string
	Email    string
}

type Request struct {
	Event         string
	Recipient     Recipient
	ReservationID *int64
	Variables     Vars
	// Channels restricts delivery to a subset of the event's policy. Empty
	// means every channel the policy names.
	Channels []Channel
}

type AttemptStatus string

const (
	AttemptSent    AttemptStatus = "sent"
	AttemptFailed  AttemptStatus = "failed"
	AttemptSkipped AttemptStatus = "skipped"
)

type Attempt struct {
	Channel     Channel       `json:"channel"`
	Audience    Audience      `json:"audience"`
	Recipient   string        `json:"recipient,omitempty"`
	Status      AttemptStatus `json:"status"`
	ProviderRef string        `json:"providerRef,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type Outcome struct {
	Event    string    `json:"event"`
	Attempts []Attempt `json:"attempts"`
}

func (o *Outcome) count(status AttemptStatus, audience Audience) int {
	n := 0
	for _, a := range o.Attempts {
		if a.Status == status && (audience == "" || a.Audience == audience) {
			n++
		}
	}
	return n
}

func (o *Outcome) Sent() int   { return o.count(AttemptSent, "") }
func (o *Outcome) Failed() int { return o.count(AttemptFailed, "") }

// Delivered reports whether at least one client channel was attempted and
// none of the client attempts failed.
func (o *Outcome) Delivered() bool {
	return o.count(AttemptFailed, AudienceClient) == 0 && o.count(AttemptSent, AudienceClient) > 0
}

// Status summarises the outcome as sent, partial, failed or skipped.
func (o *Outcome) Status() string {
	sent, failed := o.Sent(), o.Failed()
	switch {
	case sent == 0 && failed == 0:
		return string(AttemptSkipped)
	case failed == 0:
		return string(AttemptSent)
	case sent == 0:
		return string(AttemptFailed)
	default:
		return "partial"
	}
}

// Admins is the staff audience for admin routes.
type Admins struct {
	Emails []string
	Phone  string
}

type Dispatcher struct {
	templates TemplateStore
	sms       channels.SMSSender
	email     channels.EmailSender
	ledger    ledger.Ledger
	admins    Admins
	logger    logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. A nil sender disables its channel;
// attempts on it are reported as skipped.
func NewDispatcher(templates TemplateStore, sms channels.SMSSender, email channels.EmailSender, l ledger.Ledger, admins Admins, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		templates: templates,
		sms:       sms,
		email:     email,
		ledger:    l,
		admins:    admins,
		logger:    log,
		tracer:    otel.Tracer("adr-workers/notify"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type target struct {
	route   Route
	address string
}

func (d *Dispatcher) targets(req *Request, routes []Route) []target {
	allowed := func(ch Channel) bool {
		if len(req.Channels) == 0 {
			return true
		}
		for _, c := range req.Channels {
			if c == ch {
				return true
			}
		}
		return false
	}

	var out []target
	for _, r := range routes {
		if !allowed(r.Channel) {
			continue
		}
		switch {
		case r.Audience == AudienceAdmins && r.Channel == ChannelEmail:
			for _, addr := range d.admins.Emails {
				out = append(out, target{r, addr})
			}
		case r.Audience == AudienceAdmins:
			if d.admins.Phone != "" {
				out = append(out, target{r, d.admins.Phone})
			}
		case r.Channel == ChannelSMS:
			out = append(out, target{r, req.Recipient.Phone})
		default:
			out = append(out, target{r, req.Recipient.Email})
		}
	}
	return out
}

// Dispatch delivers req over every channel its event's policy names. Each
// channel runs independently and every real send attempt is appended to the
// ledger. Channel failures are reported in the Outcome, not as an error; an
// error is returned only for an unknown event.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	routes, ok := Routes(req.Event)
	if !ok {
		return nil, errors.NewValidationError("event", fmt.Sprintf("unknown notification event %q", req.Event))
	}

	ctx, span := d.tracer.Start(ctx, "notify.Dispatch",
		trace.WithAttributes(attribute.String("event", req.Event)))
	defer span.End()

	targets := d.targets(&req, routes)
	attempts := make([]Attempt, len(targets))

	var g errgroup.Group
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			attempts[i] = d.deliver(ctx, &req, t)
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{Event: req.Event, Attempts: attempts}
	span.SetAttributes(attribute.String("outcome", out.Status()))

	d.logger.Info("notification dispatched", map[string]interface{}{
		"event":         req.Event,
		"status":        out.Status(),
		"sent":          out.Sent(),
		"failed":        out.Failed(),
		"reservationId": req.ReservationID,
	})
	return out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, req *Request, t target) (a Attempt) {
	a = Attempt{Channel: t.route.Channel, Audience: t.route.Audience, Recipient: t.address}
	defer func() {
		if p := recover(); p != nil {
			a.Status = AttemptFailed
			a.Error = fmt.Sprintf("panic: %v", p)
			d.logger.Error("channel delivery panicked", map[string]interface{}{
				"event":   req.Event,
				"channel": string(t.route.Channel),
				"panic":   p,
			})
		}
		metrics.NotificationsDispatched.WithLabelValues(req.Event, string(a.Channel), string(a.Status)).Inc()
	}()

	skip := func(reason string) Attempt {
		a.Status = AttemptSkipped
		a.Error = reason
		d.logger.Debug("channel skipped", map[string]interface{}{
			"event":   req.Event,
			"channel": string(t.route.Channel),
			"reason":  reason,
		})
		return a
	}

	if t.address == "" {
		return skip("no recipient address")
	}
	if (t.route.Channel == ChannelSMS && d.sms == nil) || (t.route.Channel == ChannelEmail && d.email == nil) {
		return skip("channel disabled")
	}

	event := t.route.templateEvent(req.Event)
	tmpl, err := d.templates.Get(ctx, event, t.route.Channel)
	if errors.Is(err, errors.ErrCodeTemplateNotFound) {
		return skip("template not found")
	}
	if err != nil {
		a.Status = AttemptFailed
		a.Error = err.Error()
		d.logger.Error("template lookup failed", map[string]interface{}{
			"event":   event,
			"channel": string(t.route.Channel),
			"error":   err,
		})
		return a
	}
	if !tmpl.Enabled {
		return skip("template disabled")
	}

	vars := req.Variables.clone()
	body := Render(tmpl.Body, vars)

	var (
		res     *channels.Result
		sendErr error
	)
	switch t.route.Channel {
	case ChannelSMS:
		res, sendErr = d.sms.SendSMS(ctx, t.address, body)
	case ChannelEmail:
		subject := Render(tmpl.Subject, vars)
		res, sendErr = d.email.SendEmail(ctx, channels.Email{
			To:      t.address,
			Subject: subject,
			HTML:    channels.WrapHTML(subject, body),
			Text:    channels.PlainText(body),
		})
	}

	rec := &models.DeliveryRecord{
		EventName:     event,
		Channel:       string(t.route.Channel),
		Recipient:     t.address,
		Message:       body,
		ReservationID: req.ReservationID,
		CreatedAt:     d.now(),
	}
	if t.route.Audience == AudienceClient {
		rec.PersonID = req.Recipient.PersonID
	}

	if sendErr != nil {
		a.Status = AttemptFailed
		a.Error = sendErr.Error()
		rec.Status = models.DeliveryFailed
		rec.Error = sendErr.Error()
		d.logger.Warn("channel delivery failed", map[string]interface{}{
			"event":     event,
			"channel":   string(t.route.Channel),
			"recipient": t.address,
			"error":     sendErr,
		})
	} else {
		a.Status = AttemptSent
		rec.Status = models.DeliverySent
		if res != nil {
			a.ProviderRef = res.ProviderRef
			rec.ProviderRef = res.ProviderRef
			rec.Cost = res.Cost
		}
	}

	if err := d.ledger.Append(ctx, rec); err != nil {
		d.logger.Error("delivery record not written", map[string]interface{}{
			"event":   event,
			"channel": string(t.route.Channel),
			"status":  rec.Status,
			"error":   err,
		})
	}
	return a
}
