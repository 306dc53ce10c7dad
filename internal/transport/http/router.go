// Package httptransport exposes the reminder triggers, the live event stream
// and the reservation endpoints over HTTP.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"adr-workers/internal/certificates"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"
	"adr-workers/internal/reminders"
	"adr-workers/internal/reservations"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ReminderRunner interface {
	Run(ctx context.Context, opts reminders.RunOptions) (*reminders.Summary, error)
}

type ReservationService interface {
	Submit(ctx context.Context, in reservations.SubmitInput) (*reservations.SubmitResult, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*reservations.StatusResult, error)
	SendCompletionLink(ctx context.Context, id int64, sendVia string) (*reservations.LinkResult, error)
	Notify(ctx context.Context, event string, id int64) (*notify.Outcome, error)
}

type CertificateService interface {
	Activate(ctx context.Context, in certificates.ActivateInput) (*certificates.ActivateResult, error)
	Expiring(ctx context.Context, months int, today time.Time) ([]certificates.Expiring, error)
}

type TokenValidator interface {
	Validate(ctx context.Context, value string) (*models.CompletionToken, error)
}

// Pinger is a readiness probe for one dependency.
type Pinger func(ctx context.Context) error

type Deps struct {
	CronSecret   string
	Certificates ReminderRunner
	Courses      ReminderRunner
	Reservations ReservationService
	Certs        CertificateService
	Tokens       TokenValidator
	Events       http.Handler
	Ready        map[string]Pinger
	Logger       logger.Logger
}

type Handler struct {
	deps   Deps
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, logger: deps.Logger, now: time.Now}
}

// NewRouter wires every route. The event stream is mounted outside the
// request timeout.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if h.deps.Events != nil {
		r.Get("/api/events", h.deps.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		r.Use(h.requireCronSecret)
		r.Get("/api/cron/adr-expiry-reminders", h.handleCron(h.deps.Certificates))
		r.Get("/api/cron/send-reminders", h.handleCron(h.deps.Courses))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Route("/api/reservations", func(r chi.Router) {
			r.Post("/", h.handleSubmit)
			r.Patch("/{id}/status", h.handleUpdateStatus)
			r.Post("/{id}/send-completion-link", h.handleSendCompletionLink)
			r.Post("/{id}/notify/{event}", h.handleNotify)
		})
		r.Get("/api/certificates/expiring", h.handleExpiring)
		r.Post("/api/participants/{id}/certificates", h.handleActivate)
		r.Get("/api/completion/{token}", h.handleValidateToken)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start).String(),
			"requestId": middleware.GetReqID(r.Context()),
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Ready))
	for name, ping := range h.deps.Ready {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{"ready": status == http.StatusOK, "checks": checks})
}
