// Package identity resolves incoming contact data to a canonical participant.
package identity

import (
	"context"
	stderrors "errors"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
)

var (
	ErrNotFound = stderrors.New("identity: participant not found")
	// ErrConflict is returned by Store.Create when a unique identifier was
	// inserted concurrently.
	ErrConflict = stderrors.New("identity: participant already exists")
)

type MatchedBy string

const (
	NoMatch         MatchedBy = ""
	MatchNationalID MatchedBy = "pesel"
	MatchPhone      MatchedBy = "phone"
	MatchEmail      MatchedBy = "email"
)

// Field names reported in Result.FieldsUpdated.
const (
	FieldEmail                 = "email"
	FieldPhone                 = "phone"
	FieldNationalID            = "nationalId"
	FieldHasCurrentCertificate = "hasCurrentCertificate"
	FieldCertificateNumber     = "certificateNumber"
)

// Contact is inbound contact data from a form, import or process variable.
type Contact struct {
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	Phone                 string  `json:"phone"`
	Email                 string  `json:"email,omitempty"`
	NationalID            *string `json:"nationalId,omitempty"`
	HasCurrentCertificate *bool   `json:"hasCurrentCertificate,omitempty"`
	CertificateNumber     *string `json:"certificateNumber,omitempty"`
	Notes                 string  `json:"notes,omitempty"`
}

type Result struct {
	Person        *models.Person `json:"participant"`
	Created       bool           `json:"isNew"`
	MatchedBy     MatchedBy      `json:"matched,omitempty"`
	FieldsUpdated []string       `json:"fieldsUpdated"`
}

// PersonUpdate carries only the fields that changed; nil means untouched.
type PersonUpdate struct {
	Email                 *string
	Phone                 *string
	NationalID            *string
	HasCurrentCertificate *bool
	CertificateNumber     *string
	UpdatedAt             time.Time
}

type Store interface {
	FindByNationalID(ctx context.Context, nationalID string) (*models.Person, error)
	FindByPhone(ctx context.Context, phone string) (*models.Person, error)
	FindByEmail(ctx context.Context, email string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) error
	Update(ctx context.Context, id int64, u PersonUpdate) error
}

type Resolver struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type lookup struct {
	by   MatchedBy
	key  string
	find func(context.Context, string) (*models.Person, error)
}

// lookups lists match attempts in priority order; the first hit wins.
func (r *Resolver) lookups(c *Contact) []lookup {
	var out []lookup
	if c.NationalID != nil && ValidNationalID(*c.NationalID) {
		out = append(out, lookup{MatchNationalID, *c.NationalID, r.store.FindByNationalID})
	}
	if c.Phone != "" {
		out = append(out, lookup{MatchPhone, c.Phone, r.store.FindByPhone})
	}
	if c.Email != "" {
		out = append(out, lookup{MatchEmail, c.Email, r.store.FindByEmail})
	}
	return out
}

// Resolve returns the canonical participant for c, merging into an existing
// record or creating a new one. Callers validate c first; Resolve only
// normalizes. Concurrent resolves of the same identity race on the mutable
// fields and the last write wins.
func (r *Resolver) Resolve(ctx context.Context, c Contact) (*Result, error) {
	c.Normalize()

	res, err := r.resolve(ctx, &c)
	if stderrors.Is(err, ErrConflict) {
		// Lost a create race; the winner's row is now matchable.
		res, err = r.resolve(ctx, &c)
	}
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, c *Contact) (*Result, error) {
	for _, l := range r.lookups(c) {
		p, err := l.find(ctx, l.key)
		if stderrors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("find participant by "+string(l.by), err)
		}
		return r.merge(ctx, p, c, l.by)
	}
	return r.create(ctx, c)
}

func (r *Resolver) merge(ctx context.Context, p *models.Person, c *Contact, by MatchedBy) (*Result, error) {
	var (
		u       PersonUpdate
		changed []string
	)

	if c.Email != "" && c.Email != p.Email {
		u.Email = &c.Email
		p.Email = c.Email
		changed = append(changed, FieldEmail)
	}
	if c.Phone != "" && c.Phone != p.Phone {
		u.Phone = &c.Phone
		p.Phone = c.Phone
		changed = append(changed, FieldPhone)
	}
	if p.PESEL == nil && c.NationalID != nil && ValidNationalID(*c.NationalID) {
		u.NationalID = c.NationalID
		p.PESEL = c.NationalID
		changed = append(changed, FieldNationalID)
	}
	// The flag only ever moves from unset or false to true.
	if c.HasCurrentCertificate != nil && *c.HasCurrentCertificate &&
		(p.HasCurrentCertificate == nil || !*p.HasCurrentCertificate) {
		u.HasCurrentCertificate = c.HasCurrentCertificate
		p.HasCurrentCertificate = c.HasCurrentCertificate
		changed = append(changed, FieldHasCurrentCertificate)
	}
	if p.CertificateNumber == nil && c.CertificateNumber != nil {
		u.CertificateNumber = c.CertificateNumber
		p.CertificateNumber = c.CertificateNumber
		changed = append(changed, FieldCertificateNumber)
	}

	if len(changed) > 0 {
		u.UpdatedAt = r.now()
		if err := r.store.Update(ctx, p.ID, u); err != nil {
			return nil, errors.NewQueryExecutionFailedError("update participant", err)
		}
		p.UpdatedAt = &u.UpdatedAt
	}

	r.logger.Info("participant matched", map[string]interface{}{
		"participantId": p.ID,
		"matchedBy":     string(by),
		"fieldsUpdated": changed,
	})

	if changed == nil {
		changed = []string{}
	}
	return &Result{Person: p, MatchedBy: by, FieldsUpdated: changed}, nil
}

func (r *Resolver) create(ctx context.Context, c *Contact) (*Result, error) {
	p := &models.Person{
		FirstName:             c.FirstName,
		LastName:              c.LastName,
		Phone:                 c.Phone,
		Email:                 c.Email,
		HasCurrentCertificate: c.HasCurrentCertificate,
		CertificateNumber:     c.CertificateNumber,
		Notes:                 c.Notes,
		CreatedAt:             r.now(),
	}
	if c.NationalID != nil && ValidNationalID(*c.NationalID) {
		p.PESEL = c.NationalID
	}

	if err := r.store.Create(ctx, p); err != nil {
		if stderrors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, errors.NewDatabaseInsertFailedError(err)
	}

	r.logger.Info("participant created", map[string]interface{}{
		"participantId": p.ID,
	})
	return &Result{Person: p, Created: true, FieldsUpdated: []string{}}, nil
}
