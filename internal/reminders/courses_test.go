package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
	"adr-workers/internal/notify"
)

type stubCourses struct {
	rows    []models.ReservationDetail
	gotDay  time.Time
	listErr error
}

func (s *stubCourses) ReservationsStarting(_ context.Context, day time.Time) ([]models.ReservationDetail, error) {
	s.gotDay = day
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.ReservationDetail
	for _, r := range s.rows {
		if r.Course.StartDate.Equal(day) {
			out = append(out, r)
		}
	}
	return out, nil
}

func reservationOn(id int64, start time.Time, status models.ReservationStatus) models.ReservationDetail {
	return models.ReservationDetail{
		Reservation: models.Reservation{ID: id, PersonID: id, CourseID: 5, Status: status},
		Person:      models.Person{ID: id, FirstName: "Anna", LastName: "Nowak", Phone: "48512345678", Email: "anna@x.pl"},
		Course:      models.Course{ID: 5, CourseType: "podstawowy", StartDate: start, EndDate: start.AddDate(0, 0, 2), Location: "Gdańsk", Status: models.CourseActive},
	}
}

func newMiniredisMarker(t *testing.T) (*RedisMarker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisMarker(rdb, 72*time.Hour), mr
}

func newCourseEvaluator(t *testing.T, store CourseStore, d Dispatcher, marker Marker) *CourseEvaluator {
	e := NewCourseEvaluator(store, d, marker, 1, time.UTC, nil, logger.NewTestLogger(t))
	e.now = func() time.Time { return runDay }
	return e
}

func TestCourseEvaluator_RemindsAttendingReservations(t *testing.T) {
	tomorrow := daysFromRun(1)
	store := &stubCourses{rows: []models.ReservationDetail{
		reservationOn(1, tomorrow, models.ReservationConfirmed),
		reservationOn(2, tomorrow, models.ReservationPaid),
		reservationOn(3, tomorrow, models.ReservationPending),
		reservationOn(4, tomorrow, models.ReservationCancelled),
		reservationOn(5, daysFromRun(2), models.ReservationConfirmed),
	}}
	d := &fakeDispatcher{}
	e := newCourseEvaluator(t, store, d, nil)

	sum, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, tomorrow, store.gotDay)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Sent)
	require.Len(t, d.requests, 2)
	assert.Equal(t, notify.EventCourseReminder, d.requests[0].Event)
	assert.Equal(t, "11.05.2026", d.requests[0].Variables["startDate"])
	assert.Equal(t, int64(1), *d.requests[0].ReservationID)
}

func TestCourseEvaluator_MarkerPreventsDuplicateSend(t *testing.T) {
	tomorrow := daysFromRun(1)
	store := &stubCourses{rows: []models.ReservationDetail{reservationOn(1, tomorrow, models.ReservationConfirmed)}}
	d := &fakeDispatcher{}
	marker, mr := newMiniredisMarker(t)
	e := newCourseEvaluator(t, store, d, marker)

	first, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)
	assert.Len(t, d.requests, 1)

	key := CourseMarkerKey(1, tomorrow)
	assert.Equal(t, "reminders:course:1:2026-05-11", key)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 72*time.Hour, mr.TTL(key))
}

func TestCourseEvaluator_FailureReleasesMarker(t *testing.T) {
	tomorrow := daysFromRun(1)
	store := &stubCourses{rows: []models.ReservationDetail{reservationOn(1, tomorrow, models.ReservationConfirmed)}}
	d := &fakeDispatcher{dispatchF: func(req notify.Request) (*notify.Outcome, error) {
		return &notify.Outcome{Attempts: []notify.Attempt{
			{Channel: notify.ChannelEmail, Audience: notify.AudienceClient, Status: notify.AttemptFailed, Error: "smtp timeout"},
		}}, nil
	}}
	marker, mr := newMiniredisMarker(t)
	e := newCourseEvaluator(t, store, d, marker)

	sum, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Sent)
	assert.Equal(t, "email: smtp timeout", sum.Details[0].Error)
	assert.False(t, mr.Exists(CourseMarkerKey(1, tomorrow)))
}

func TestCourseEvaluator_RedisDownStillSends(t *testing.T) {
	tomorrow := daysFromRun(1)
	store := &stubCourses{rows: []models.ReservationDetail{reservationOn(1, tomorrow, models.ReservationConfirmed)}}
	d := &fakeDispatcher{}
	marker, mr := newMiniredisMarker(t)
	mr.Close()
	e := newCourseEvaluator(t, store, d, marker)

	sum, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
}

func TestCourseEvaluator_DryRunDoesNotClaim(t *testing.T) {
	tomorrow := daysFromRun(1)
	store := &stubCourses{rows: []models.ReservationDetail{reservationOn(1, tomorrow, models.ReservationConfirmed)}}
	d := &fakeDispatcher{}
	marker, mr := newMiniredisMarker(t)
	e := newCourseEvaluator(t, store, d, marker)

	sum, err := e.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Empty(t, d.requests)
	assert.False(t, mr.Exists(CourseMarkerKey(1, tomorrow)))
}

func TestCourseEvaluator_StoreFailure(t *testing.T) {
	e := newCourseEvaluator(t, &stubCourses{listErr: errors.New("db down")}, &fakeDispatcher{}, nil)
	_, err := e.Run(context.Background(), RunOptions{})
	assert.Error(t, err)
}
