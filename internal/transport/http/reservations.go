package httptransport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"adr-workers/internal/certificates"
	"adr-workers/internal/common/errors"
	"adr-workers/internal/identity"
	"adr-workers/internal/reservations"

	"github.com/go-chi/chi/v5"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

type courseRef struct {
	ID int64 `json:"id"`
}

// submitRequest accepts either a single name or first/last name, and either
// courseIds or the courses list posted by the booking form.
type submitRequest struct {
	Name      string      `json:"name"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     string      `json:"phone"`
	Email     string      `json:"email"`
	PESEL     *string     `json:"pesel"`
	Notes     string      `json:"notes"`
	Source    string      `json:"source"`
	CourseIDs []int64     `json:"courseIds"`
	Courses   []courseRef `json:"courses"`
}

func (req *submitRequest) input() reservations.SubmitInput {
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if first == "" && req.Name != "" {
		first, last = reservations.SplitName(req.Name)
	}
	ids := append([]int64{}, req.CourseIDs...)
	for _, c := range req.Courses {
		ids = append(ids, c.ID)
	}
	return reservations.SubmitInput{
		Contact: identity.Contact{
			FirstName:  first,
			LastName:   last,
			Phone:      req.Phone,
			Email:      req.Email,
			NationalID: req.PESEL,
			Notes:      req.Notes,
		},
		CourseIDs: ids,
		Source:    req.Source,
		Notes:     req.Notes,
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Reservations.Submit(r.Context(), req.input())
	if err != nil {
		h.logFailure(r, "submit reservation", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Reservations.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logFailure(r, "update reservation status", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSendCompletionLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		SendVia string `json:"sendVia"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Reservations.SendCompletionLink(r.Context(), id, req.SendVia)
	if err != nil {
		h.logFailure(r, "send completion link", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.Reservations.Notify(r.Context(), chi.URLParam(r, "event"), id)
	if err != nil {
		h.logFailure(r, "notify reservation", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	months := 6
	if m := r.URL.Query().Get("months"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			writeError(w, errors.NewValidationError("months", "must be a positive integer"))
			return
		}
		months = n
	}
	items, err := h.deps.Certs.Expiring(r.Context(), months, h.now())
	if err != nil {
		h.logFailure(r, "list expiring certificates", err)
		writeError(w, err)
		return
	}
	if items == nil {
		items = []certificates.Expiring{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(items), "items": items})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Number     string `json:"certificateNumber"`
		IssueDate  string `json:"issueDate"`
		ExpiryDate string `json:"expiryDate"`
		Notes      string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := certificates.ActivateInput{PersonID: id, Number: req.Number, Notes: req.Notes}
	if req.ExpiryDate != "" {
		if in.ExpiryDate, err = time.Parse("2006-01-02", req.ExpiryDate); err != nil {
			writeError(w, errors.NewValidationError("expiryDate", "must be YYYY-MM-DD"))
			return
		}
	}
	if req.IssueDate != "" {
		issued, err := time.Parse("2006-01-02", req.IssueDate)
		if err != nil {
			writeError(w, errors.NewValidationError("issueDate", "must be YYYY-MM-DD"))
			return
		}
		in.IssueDate = &issued
	}

	res, err := h.deps.Certs.Activate(r.Context(), in)
	if err != nil {
		h.logFailure(r, "activate certificate", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.deps.Tokens.Validate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":         true,
		"reservationId": tok.ReservationID,
		"participantId": tok.PersonID,
		"expiresAt":     tok.ExpiresAt,
	})
}

func (h *Handler) logFailure(r *http.Request, op string, err error) {
	fields := map[string]interface{}{"operation": op, "path": r.URL.Path, "error": err}
	if statusFor(errors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}
