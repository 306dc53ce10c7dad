package reminders

import (
	"context"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/common/observability"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"

	"go.opentelemetry.io/otel/attribute"
)

type CertificateStore interface {
	// ActiveExpiringBetween returns active certificates with from <= expiry <= to.
	ActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]models.CertificateHolder, error)
	// MarkReminderSent sets the threshold marker and reports whether this
	// call changed it.
	MarkReminderSent(ctx context.Context, certificateID int64, threshold string) (bool, error)
	// ReleaseReminder clears a marker set by MarkReminderSent.
	ReleaseReminder(ctx context.Context, certificateID int64, threshold string) (bool, error)
}

// CertificateEvaluator sends the 6/3/1-month expiry reminders. The reminder
// markers are its only idempotency mechanism: a marker is claimed before the
// dispatch and released again when the dispatch is not delivered.
type CertificateEvaluator struct {
	store      CertificateStore
	dispatcher Dispatcher
	loc        *time.Location
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

func NewCertificateEvaluator(store CertificateStore, d Dispatcher, loc *time.Location, obs *observability.Observability, log logger.Logger) *CertificateEvaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &CertificateEvaluator{
		store:      store,
		dispatcher: d,
		loc:        loc,
		obs:        obs,
		logger:     log,
		now:        time.Now,
	}
}

func (e *CertificateEvaluator) today(opts RunOptions) time.Time {
	if !opts.Today.IsZero() {
		return Day(opts.Today, e.loc)
	}
	return Day(e.now(), e.loc)
}

// Run evaluates every active certificate once. Per-certificate failures are
// reported in the summary and never abort the batch.
func (e *CertificateEvaluator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	started := time.Now()
	today := e.today(opts)

	ctx, span := e.obs.Tracer().Start(ctx, "reminders.certificates")
	defer span.End()
	span.SetAttributes(attribute.Bool("dry_run", opts.DryRun), attribute.String("date", today.Format("2006-01-02")))

	holders, err := e.store.ActiveExpiringBetween(ctx, today, today.AddDate(0, 0, maxWindowDays()))
	if err != nil {
		span.RecordError(err)
		return nil, errors.NewQueryExecutionFailedError("list expiring certificates", err)
	}

	sum := newSummary(today, opts.DryRun)
	for i := range holders {
		if ctx.Err() != nil {
			break
		}
		h := &holders[i]
		days := DaysUntil(today, h.Certificate.ExpiryDate, e.loc)
		th, due := DueThreshold(days, &h.Certificate)
		if !due {
			continue
		}
		if detail, counted := e.remind(ctx, h, th, opts.DryRun); counted {
			sum.add(detail)
		}
	}
	sum.finish("o wygasających ADR")

	span.SetAttributes(attribute.Int("total", sum.Total), attribute.Int("sent", sum.Sent))
	e.obs.RecordRun(ctx, "certificate", time.Since(started), opts.DryRun)
	e.logger.Info("certificate reminders evaluated", map[string]interface{}{
		"date":   sum.Date,
		"total":  sum.Total,
		"sent":   sum.Sent,
		"dryRun": opts.DryRun,
	})
	return sum, nil
}

// remind claims the threshold marker before dispatching and reports false
// when another run already holds it. A failed dispatch releases the claim.
func (e *CertificateEvaluator) remind(ctx context.Context, h *models.CertificateHolder, th Threshold, dryRun bool) (Detail, bool) {
	d := Detail{
		EntityID:         h.Certificate.ID,
		RecipientName:    h.Person.FullName(),
		RecipientContact: contactOf(&h.Person),
		Threshold:        th.Name,
		DueDate:          h.Certificate.ExpiryDate.Format("2006-01-02"),
	}
	if dryRun {
		d.Success = true
		d.Error = dryRunNote
		metrics.RemindersEvaluated.WithLabelValues("certificate", th.Name, "dry_run").Inc()
		return d, true
	}

	claimed, err := e.store.MarkReminderSent(ctx, h.Certificate.ID, th.Name)
	if err != nil {
		d.Error = "marker not claimed: " + err.Error()
		metrics.RemindersEvaluated.WithLabelValues("certificate", th.Name, "failed").Inc()
		return d, true
	}
	if !claimed {
		metrics.RemindersEvaluated.WithLabelValues("certificate", th.Name, "duplicate").Inc()
		return d, false
	}

	out, err := e.dispatcher.Dispatch(ctx, notify.Request{
		Event:     th.Event,
		Recipient: notify.RecipientOf(&h.Person),
		Variables: notify.CertificateVars(h),
	})
	switch {
	case err != nil:
		d.Error = err.Error()
	default:
		d.Error = outcomeError(out)
		d.Success = d.Error == ""
	}

	if !d.Success {
		if _, err := e.store.ReleaseReminder(ctx, h.Certificate.ID, th.Name); err != nil {
			// Claimed but not sent: this threshold is skipped until the marker is cleared.
			e.logger.Error("reminder marker not released", map[string]interface{}{
				"certificateId": h.Certificate.ID,
				"threshold":     th.Name,
				"error":         err,
			})
		}
	}

	outcome := "sent"
	if !d.Success {
		outcome = "failed"
	}
	metrics.RemindersEvaluated.WithLabelValues("certificate", th.Name, outcome).Inc()
	return d, true
}
