package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationPaid      ReservationStatus = "paid"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationNoShow    ReservationStatus = "no_show"
)

const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationPaid, ReservationCancelled, ReservationNoShow},
	ReservationConfirmed: {ReservationPaid, ReservationCompleted, ReservationCancelled, ReservationNoShow},
	ReservationPaid:      {ReservationCompleted, ReservationCancelled, ReservationNoShow},
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationPaid,
		ReservationCompleted, ReservationCancelled, ReservationNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. Transitions only move
// forward; completed, cancelled and no_show are terminal.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether a reservation counts as an attending participant.
func (s ReservationStatus) Active() bool {
	return s == ReservationConfirmed || s == ReservationPaid || s == ReservationCompleted
}

type Reservation struct {
	ID            int64             `json:"id"`
	PersonID      int64             `json:"participantId"`
	CourseID      int64             `json:"courseId"`
	Status        ReservationStatus `json:"status"`
	PaymentStatus string            `json:"paymentStatus"`
	Notes         string            `json:"notes,omitempty"`
	Source        string            `json:"source,omitempty"`
	ConfirmedAt   *time.Time        `json:"confirmedAt,omitempty"`
	PaidAt        *time.Time        `json:"paidAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     *time.Time        `json:"updatedAt,omitempty"`
}

// ReservationDetail is a reservation joined with its person and course.
type ReservationDetail struct {
	Reservation Reservation
	Person      Person
	Course      Course
}
