// Package live fans reservation events out to connected observers.
package live

import (
	"sync"
	"time"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/models"
)

const (
	EventNewReservation    = "new_reservation"
	EventReservationUpdate = "reservation_update"
)

type Event struct {
	Name    string      `json:"eventName"`
	Payload interface{} `json:"payload"`
}

type NewReservationPayload struct {
	ReservationID int64     `json:"reservationId"`
	ParticipantID int64     `json:"participantId"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Course        string    `json:"course"`
	StartDate     string    `json:"startDate"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ReservationUpdatePayload struct {
	ReservationID  int64  `json:"reservationId"`
	Name           string `json:"name"`
	Course         string `json:"course"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
	PaymentStatus  string `json:"paymentStatus"`
}

type observer struct {
	out  chan<- Event
	done chan struct{}
}

// Sink is a registry of observer channels. Delivery is best effort: an
// observer whose channel cannot take an event right away is dropped, and its
// done channel is closed so the observer can reconnect.
type Sink struct {
	mu        sync.RWMutex
	observers map[string]observer
	logger    logger.Logger
}

func NewSink(log logger.Logger) *Sink {
	return &Sink{observers: make(map[string]observer), logger: log}
}

// Register adds out under id, replacing any observer already registered
// there. The returned channel is closed once the observer is removed.
func (s *Sink) Register(id string, out chan<- Event) <-chan struct{} {
	o := observer{out: out, done: make(chan struct{})}
	s.mu.Lock()
	prev, replaced := s.observers[id]
	s.observers[id] = o
	n := len(s.observers)
	s.mu.Unlock()
	if replaced {
		close(prev.done)
	}
	metrics.LiveObservers.Set(float64(n))
	return o.done
}

func (s *Sink) Deregister(id string) {
	s.remove(id, nil)
}

// remove deletes id. A non-nil out limits it to that registration so a
// newer observer under the same id survives.
func (s *Sink) remove(id string, out chan<- Event) bool {
	s.mu.Lock()
	o, ok := s.observers[id]
	if ok && (out == nil || o.out == out) {
		delete(s.observers, id)
	} else {
		ok = false
	}
	n := len(s.observers)
	s.mu.Unlock()
	if ok {
		close(o.done)
	}
	metrics.LiveObservers.Set(float64(n))
	return ok
}

func (s *Sink) Observers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// offer never blocks. It reports false when out is full or closed.
func offer(out chan<- Event, ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case out <- ev:
		return true
	default:
		return false
	}
}

// Broadcast writes ev to every observer and returns how many took it.
func (s *Sink) Broadcast(ev Event) int {
	s.mu.RLock()
	dead := map[string]chan<- Event{}
	delivered := 0
	for id, o := range s.observers {
		if offer(o.out, ev) {
			delivered++
		} else {
			dead[id] = o.out
		}
	}
	s.mu.RUnlock()

	for id, out := range dead {
		if s.remove(id, out) {
			s.logger.Debug("live observer dropped", map[string]interface{}{"observerId": id, "event": ev.Name})
		}
	}
	return delivered
}

func (s *Sink) NotifyNewReservation(d *models.ReservationDetail) {
	s.Broadcast(Event{Name: EventNewReservation, Payload: NewReservationPayload{
		ReservationID: d.Reservation.ID,
		ParticipantID: d.Person.ID,
		Name:          d.Person.FullName(),
		Phone:         d.Person.Phone,
		Course:        d.Course.DisplayName(),
		StartDate:     d.Course.StartDate.Format("2006-01-02"),
		Status:        string(d.Reservation.Status),
		CreatedAt:     d.Reservation.CreatedAt,
	}})
}

func (s *Sink) NotifyReservationUpdate(d *models.ReservationDetail, previous models.ReservationStatus) {
	s.Broadcast(Event{Name: EventReservationUpdate, Payload: ReservationUpdatePayload{
		ReservationID:  d.Reservation.ID,
		Name:           d.Person.FullName(),
		Course:         d.Course.DisplayName(),
		Status:         string(d.Reservation.Status),
		PreviousStatus: string(previous),
		PaymentStatus:  d.Reservation.PaymentStatus,
	}})
}
