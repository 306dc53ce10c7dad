package notify

import (
	"regexp"
	"time"

	"adr-workers/internal/identity"
	"adr-workers/internal/models"
)

// Placeholder keys are restricted to ASCII letters, digits and underscore.
// Anything else between braces is left untouched.
var placeholder = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

const dateLayout = "02.01.2006"

// Vars are template variables keyed by placeholder name.
type Vars map[string]string

// Render substitutes every {{key}} in text. Keys without a value render as "".
func Render(text string, vars Vars) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		return vars[m[2:len(m)-2]]
	})
}

func (v Vars) clone() Vars {
	out := make(Vars, len(v)+2)
	for k, val := range v {
		out[k] = val
	}
	return out
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func PersonVars(p *models.Person) Vars {
	return Vars{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"phone":     identity.FormatPhoneDisplay(p.Phone),
		"email":     p.Email,
	}
}

func ReservationVars(d *models.ReservationDetail) Vars {
	v := PersonVars(&d.Person)
	v["course"] = d.Course.DisplayName()
	v["startDate"] = FormatDate(d.Course.StartDate)
	v["endDate"] = FormatDate(d.Course.EndDate)
	v["location"] = d.Course.Location
	return v
}

func CertificateVars(h *models.CertificateHolder) Vars {
	v := PersonVars(&h.Person)
	v["certificateNumber"] = h.Certificate.Number
	v["expiryDate"] = FormatDate(h.Certificate.ExpiryDate)
	return v
}

func RecipientOf(p *models.Person) Recipient {
	id := p.ID
	return Recipient{PersonID: &id, Name: p.FullName(), Phone: p.Phone, Email: p.Email}
}
