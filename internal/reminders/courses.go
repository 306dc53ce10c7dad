package reminders

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/common/observability"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"

	"go.opentelemetry.io/otel/attribute"
)

type CourseStore interface {
	// ReservationsStarting returns reservations with an attending status on
	// active courses starting on day.
	ReservationsStarting(ctx context.Context, day time.Time) ([]models.ReservationDetail, error)
}

var ErrAlreadyClaimed = stderrors.New("reminders: already claimed")

// Marker guards a reminder against a second send. Claim returns
// ErrAlreadyClaimed when key is already held.
type Marker interface {
	Claim(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// CourseEvaluator sends the day-before course reminder. Without a Marker it
// relies on being run at most once per calendar day.
type CourseEvaluator struct {
	store      CourseStore
	dispatcher Dispatcher
	marker     Marker
	leadDays   int
	loc        *time.Location
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

func NewCourseEvaluator(store CourseStore, d Dispatcher, marker Marker, leadDays int, loc *time.Location, obs *observability.Observability, log logger.Logger) *CourseEvaluator {
	if leadDays <= 0 {
		leadDays = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CourseEvaluator{
		store:      store,
		dispatcher: d,
		marker:     marker,
		leadDays:   leadDays,
		loc:        loc,
		obs:        obs,
		logger:     log,
		now:        time.Now,
	}
}

func CourseMarkerKey(reservationID int64, start time.Time) string {
	return fmt.Sprintf("reminders:course:%d:%s", reservationID, start.UTC().Format("2006-01-02"))
}

func (e *CourseEvaluator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	started := time.Now()
	today := Day(e.now(), e.loc)
	if !opts.Today.IsZero() {
		today = Day(opts.Today, e.loc)
	}
	y, m, d := today.AddDate(0, 0, e.leadDays).Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	ctx, span := e.obs.Tracer().Start(ctx, "reminders.courses")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", opts.DryRun), attribute.String("target", target.Format("2006-01-02")))

	rows, err := e.store.ReservationsStarting(ctx, target)
	if err != nil {
		span.RecordError(err)
		return nil, errors.NewQueryExecutionFailedError("list reservations starting", err)
	}

	sum := newSummary(today, opts.DryRun)
	threshold := strconv.Itoa(e.leadDays) + "d"
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		r := &rows[i]
		if !r.Reservation.Status.Active() || DaysUntil(today, r.Course.StartDate, e.loc) != e.leadDays {
			continue
		}
		detail, counted := e.remind(ctx, r, threshold, opts.DryRun)
		if counted {
			sum.add(detail)
		}
	}
	sum.finish("o kursach")

	e.obs.RecordRun(ctx, "course", time.Since(started), opts.DryRun)
	e.logger.Info("course reminders evaluated", map[string]interface{}{
		"date":   sum.Date,
		"target": target.Format("2006-01-02"),
		"total":  sum.Total,
		"sent":   sum.Sent,
		"dryRun": opts.DryRun,
	})
	return sum, nil
}

// remind reports false when the reminder was already claimed by another run.
func (e *CourseEvaluator) remind(ctx context.Context, r *models.ReservationDetail, threshold string, dryRun bool) (Detail, bool) {
	d := Detail{
		EntityID:         r.Reservation.ID,
		RecipientName:    r.Person.FullName(),
		RecipientContact: contactOf(&r.Person),
		Threshold:        threshold,
		DueDate:          r.Course.StartDate.UTC().Format("2006-01-02"),
	}
	if dryRun {
		d.Success = true
		d.Error = dryRunNote
		metrics.RemindersEvaluated.WithLabelValues("course", threshold, "dry_run").Inc()
		return d, true
	}

	key := CourseMarkerKey(r.Reservation.ID, r.Course.StartDate)
	claimed := false
	if e.marker != nil {
		switch err := e.marker.Claim(ctx, key); {
		case err == nil:
			claimed = true
		case stderrors.Is(err, ErrAlreadyClaimed):
			metrics.RemindersEvaluated.WithLabelValues("course", threshold, "duplicate").Inc()
			return d, false
		default:
			e.logger.Warn("course reminder marker unavailable", map[string]interface{}{
				"reservationId": r.Reservation.ID,
				"error":         err,
			})
		}
	}

	id := r.Reservation.ID
	out, err := e.dispatcher.Dispatch(ctx, notify.Request{
		Event:         notify.EventCourseReminder,
		Recipient:     notify.RecipientOf(&r.Person),
		ReservationID: &id,
		Variables:     notify.ReservationVars(r),
	})
	switch {
	case err != nil:
		d.Error = err.Error()
	default:
		d.Error = outcomeError(out)
		d.Success = d.Error == ""
	}

	if !d.Success && claimed {
		if err := e.marker.Release(ctx, key); err != nil {
			e.logger.Warn("course reminder marker not released", map[string]interface{}{
				"reservationId": r.Reservation.ID,
				"error":         err,
			})
		}
	}

	outcome := "sent"
	if !d.Success {
		outcome = "failed"
	}
	metrics.RemindersEvaluated.WithLabelValues("course", threshold, outcome).Inc()
	return d, true
}
