package httptransport

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/reminders"
)

func cronCredential(r *http.Request) string {
	if s := r.URL.Query().Get("secret"); s != "" {
		return s
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requireCronSecret rejects the request before any evaluation unless it
// carries the shared secret as ?secret= or a bearer token.
func (h *Handler) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := cronCredential(r)
		want := h.deps.CronSecret
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			h.logger.Warn("cron trigger rejected", map[string]interface{}{
				"path":     r.URL.Path,
				"remoteIp": r.RemoteAddr,
			})
			writeError(w, errors.NewUnauthorizedError("missing or invalid cron secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleCron(runner ReminderRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := reminders.RunOptions{DryRun: q.Get("dry_run") == "1"}
		if d := q.Get("date"); d != "" {
			day, err := time.Parse("2006-01-02", d)
			if err != nil {
				writeError(w, errors.NewValidationError("date", "must be YYYY-MM-DD"))
				return
			}
			opts.Today = day
		}

		sum, err := runner.Run(r.Context(), opts)
		if err != nil {
			h.logger.Error("reminder run failed", map[string]interface{}{"path": r.URL.Path, "error": err})
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
