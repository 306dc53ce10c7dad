package reminders

import (
	"context"
	"fmt"
	"time"

	"adr-workers/internal/models"
	"adr-workers/internal/notify"
)

const dryRunNote = "DRY RUN"

// Dispatcher is the notification collaborator used by both evaluators.
type Dispatcher interface {
	Dispatch(ctx context.Context, req notify.Request) (*notify.Outcome, error)
}

type RunOptions struct {
	// Today overrides the run date; zero means now.
	Today  time.Time
	DryRun bool
}

type Detail struct {
	EntityID         int64  `json:"entityId"`
	RecipientName    string `json:"recipientName"`
	RecipientContact string `json:"recipientContact"`
	Threshold        string `json:"threshold"`
	DueDate          string `json:"dueDate,omitempty"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

// Summary is the report returned to the trigger.
type Summary struct {
	Message string   `json:"message"`
	Date    string   `json:"date"`
	Sent    int      `json:"sent"`
	Total   int      `json:"total"`
	DryRun  bool     `json:"dryRun"`
	Details []Detail `json:"details"`
}

func newSummary(today time.Time, dryRun bool) *Summary {
	return &Summary{Date: today.Format("2006-01-02"), DryRun: dryRun, Details: []Detail{}}
}

func (s *Summary) add(d Detail) {
	s.Total++
	if d.Success {
		s.Sent++
	}
	s.Details = append(s.Details, d)
}

func (s *Summary) finish(what string) {
	s.Message = fmt.Sprintf("Wysłano %d/%d przypomnień %s", s.Sent, s.Total, what)
}

func contactOf(p *models.Person) string {
	if p.Email == "" {
		return p.Phone
	}
	return p.Phone + " / " + p.Email
}

// outcomeError joins the errors of failed attempts. A run with no attempt at
// all is a failure too, so the marker stays unset.
func outcomeError(o *notify.Outcome) string {
	if o.Delivered() {
		return ""
	}
	var msg string
	for _, a := range o.Attempts {
		if a.Status != notify.AttemptFailed {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += string(a.Channel) + ": " + a.Error
	}
	if msg == "" {
		msg = "no channel delivered"
	}
	return msg
}
