package identity

import (
	"net/mail"
	"strings"
	"unicode"

	"adr-workers/internal/common/errors"
)

const (
	countryPrefix  = "48"
	localDigits    = 9
	nationalIDLen  = 11
	canonicalPhone = len(countryPrefix) + localDigits
)

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone reduces a Polish phone number to 48XXXXXXXXX. Separators,
// a leading '+' and the 00 international prefix are removed and a bare
// 9-digit local number gets the country prefix. Inputs that do not fit are
// returned as digits only, so NormalizePhone(NormalizePhone(x)) == NormalizePhone(x).
func NormalizePhone(raw string) string {
	d := digitsOnly(raw)
	switch {
	case len(d) == canonicalPhone+2 && strings.HasPrefix(d, "00"+countryPrefix):
		return d[2:]
	case len(d) == localDigits:
		return countryPrefix + d
	default:
		return d
	}
}

// ValidPhone reports whether phone is a canonical Polish mobile number.
func ValidPhone(phone string) bool {
	if len(phone) != canonicalPhone || !strings.HasPrefix(phone, countryPrefix) {
		return false
	}
	if digitsOnly(phone) != phone {
		return false
	}
	switch phone[2] {
	case '5', '6', '7', '8':
		return true
	}
	return false
}

// FormatPhoneDisplay renders a canonical number as "XXX XXX XXX".
func FormatPhoneDisplay(phone string) string {
	p := NormalizePhone(phone)
	if len(p) != canonicalPhone || !strings.HasPrefix(p, countryPrefix) {
		return phone
	}
	local := p[len(countryPrefix):]
	return local[0:3] + " " + local[3:6] + " " + local[6:9]
}

// NormalizeNationalID strips whitespace. It does not validate.
func NormalizeNationalID(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

func ValidNationalID(id string) bool {
	return len(id) == nationalIDLen && digitsOnly(id) == id
}

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// Normalize canonicalizes every identifier of c in place.
func (c *Contact) Normalize() {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Phone = NormalizePhone(c.Phone)
	c.Email = NormalizeEmail(c.Email)
	if c.NationalID != nil {
		id := NormalizeNationalID(*c.NationalID)
		if id == "" {
			c.NationalID = nil
		} else {
			c.NationalID = &id
		}
	}
	if c.CertificateNumber != nil {
		n := strings.TrimSpace(*c.CertificateNumber)
		if n == "" {
			c.CertificateNumber = nil
		} else {
			c.CertificateNumber = &n
		}
	}
}

// Validate normalizes c and returns a field-level validation error for the
// first malformed identifier. Callers reject the contact before resolving it.
func (c *Contact) Validate() error {
	c.Normalize()

	switch {
	case c.FirstName == "":
		return errors.NewValidationError("firstName", "is required")
	case c.LastName == "":
		return errors.NewValidationError("lastName", "is required")
	case c.Phone == "":
		return errors.NewValidationError("phone", "is required")
	case !ValidPhone(c.Phone):
		return errors.NewValidationError("phone", "must be a Polish mobile number (9 digits, optional +48)")
	case c.Email != "" && !ValidEmail(c.Email):
		return errors.NewValidationError("email", "is not a valid address")
	case c.NationalID != nil && !ValidNationalID(*c.NationalID):
		return errors.NewValidationError("nationalId", "must be exactly 11 digits")
	}
	return nil
}
