package live

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
)

func detail() *models.ReservationDetail {
	return &models.ReservationDetail{
		Reservation: models.Reservation{ID: 42, Status: models.ReservationConfirmed, PaymentStatus: models.PaymentUnpaid},
		Person:      models.Person{ID: 7, FirstName: "Jan", LastName: "Kowalski", Phone: "48606646095"},
		Course:      models.Course{CourseType: "podstawowy", StartDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestSink_BroadcastReachesEveryObserver(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	a := make(chan Event, 1)
	b := make(chan Event, 1)
	sink.Register("a", a)
	sink.Register("b", b)

	n := sink.Broadcast(Event{Name: "x"})
	assert.Equal(t, 2, n)
	assert.Equal(t, "x", (<-a).Name)
	assert.Equal(t, "x", (<-b).Name)
}

func TestSink_DropsObserversThatCannotTakeEvents(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	full := make(chan Event)
	closed := make(chan Event, 1)
	close(closed)
	ok := make(chan Event, 1)
	sink.Register("full", full)
	sink.Register("closed", closed)
	sink.Register("ok", ok)

	done := make(chan int)
	go func() { done <- sink.Broadcast(Event{Name: "x"}) }()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a stuck observer")
	}
	assert.Equal(t, 1, sink.Observers())
	assert.Equal(t, "x", (<-ok).Name)
}

func TestSink_DroppedObserverIsNotified(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	stuck := sink.Register("stuck", make(chan Event))
	live := sink.Register("live", make(chan Event, 1))

	sink.Broadcast(Event{Name: "x"})

	select {
	case <-stuck:
	case <-time.After(time.Second):
		t.Fatal("dropped observer was not notified")
	}
	select {
	case <-live:
		t.Fatal("healthy observer was notified")
	default:
	}

	sink.Deregister("live")
	sink.Deregister("live")
	select {
	case <-live:
	default:
		t.Fatal("deregistered observer was not notified")
	}
}

func TestSink_StaleDropKeepsNewerRegistration(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	old := make(chan Event)
	first := sink.Register("o", old)
	second := sink.Register("o", make(chan Event, 1))

	select {
	case <-first:
	default:
		t.Fatal("replaced observer was not notified")
	}

	assert.False(t, sink.remove("o", old))
	assert.Equal(t, 1, sink.Observers())
	select {
	case <-second:
		t.Fatal("newer observer was removed")
	default:
	}
}

func TestSink_NoObservers(t *testing.T) {
	sink := NewSink(logger.NewNoOpLogger())
	assert.Zero(t, sink.Broadcast(Event{Name: "x"}))
}

func TestSink_ReservationEvents(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	out := make(chan Event, 2)
	sink.Register("o", out)

	d := detail()
	sink.NotifyNewReservation(d)
	sink.NotifyReservationUpdate(d, models.ReservationPending)

	ev := <-out
	assert.Equal(t, EventNewReservation, ev.Name)
	p := ev.Payload.(NewReservationPayload)
	assert.Equal(t, int64(42), p.ReservationID)
	assert.Equal(t, "Jan Kowalski", p.Name)
	assert.Equal(t, "ADR Podstawowy", p.Course)
	assert.Equal(t, "2026-06-01", p.StartDate)

	ev = <-out
	assert.Equal(t, EventReservationUpdate, ev.Name)
	u := ev.Payload.(ReservationUpdatePayload)
	assert.Equal(t, "confirmed", u.Status)
	assert.Equal(t, "pending", u.PreviousStatus)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"eventName":"reservation_update"`)
	assert.Contains(t, string(raw), `"payload":{"reservationId":42`)
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			return name, data
		}
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	srv := httptest.NewServer(NewHandler(sink, 50*time.Millisecond, logger.NewTestLogger(t)))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	name, data := readEvent(t, r)
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, "clientId")
	assert.Equal(t, 1, sink.Observers())

	sink.NotifyNewReservation(detail())
	for {
		name, data = readEvent(t, r)
		if name != "ping" {
			break
		}
	}
	assert.Equal(t, EventNewReservation, name)
	assert.Contains(t, data, `"reservationId":42`)

	name, _ = readEvent(t, r)
	assert.Equal(t, "ping", name)

	cancel()
	require.Eventually(t, func() bool { return sink.Observers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_ClosesStreamWhenDropped(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	srv := httptest.NewServer(NewHandler(sink, time.Hour, logger.NewTestLogger(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	name, data := readEvent(t, r)
	require.Equal(t, "connected", name)
	var hello struct {
		ClientID string `json:"clientId"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &hello))

	sink.Deregister(hello.ClientID)

	closed := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(r)
		closed <- err
	}()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after the observer was dropped")
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	records  []*kgo.Record
	produceF func(r *kgo.Record) error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	p.mu.Unlock()
	var err error
	if p.produceF != nil {
		err = p.produceF(r)
	}
	promise(r, err)
}

func (p *fakeProducer) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, string(r.Key))
	}
	return out
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func TestKafkaBridge_PublishesEvents(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	prod := &fakeProducer{}
	bridge := NewKafkaBridge(prod, "adr.live-events", logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge.Attach(ctx, sink)

	sink.NotifyReservationUpdate(detail(), models.ReservationPending)
	require.Eventually(t, func() bool { return prod.count() == 1 }, time.Second, 10*time.Millisecond)

	rec := prod.records[0]
	assert.Equal(t, "adr.live-events", rec.Topic)
	assert.Equal(t, "42", string(rec.Key))
	assert.Equal(t, []kgo.RecordHeader{{Key: "eventName", Value: []byte(EventReservationUpdate)}}, rec.Headers)

	var ev struct {
		EventName string                   `json:"eventName"`
		Payload   ReservationUpdatePayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rec.Value, &ev))
	assert.Equal(t, EventReservationUpdate, ev.EventName)
	assert.Equal(t, "pending", ev.Payload.PreviousStatus)

	cancel()
	require.Eventually(t, func() bool { return sink.Observers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKafkaBridge_PublishFailureIsLogged(t *testing.T) {
	prod := &fakeProducer{produceF: func(*kgo.Record) error { return assert.AnError }}
	bridge := NewKafkaBridge(prod, "t", logger.NewTestLogger(t))

	bridge.publish(context.Background(), Event{Name: "ping", Payload: map[string]string{}})
	assert.Equal(t, 1, prod.count())
	assert.Nil(t, prod.records[0].Key)
}

func TestKafkaBridge_RecoversAfterProducerStall(t *testing.T) {
	sink := NewSink(logger.NewTestLogger(t))
	stall := make(chan struct{})
	prod := &fakeProducer{produceF: func(*kgo.Record) error {
		<-stall
		return nil
	}}
	bridge := NewKafkaBridge(prod, "t", logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge.Attach(ctx, sink)

	for i := 0; i < 300; i++ {
		sink.Broadcast(Event{Name: EventNewReservation, Payload: NewReservationPayload{ReservationID: int64(i)}})
	}
	assert.Equal(t, 0, sink.Observers(), "stalled bridge is dropped")

	close(stall)
	require.Eventually(t, func() bool {
		return sink.Observers() == 1 && len(bridge.events) == 0
	}, 2*time.Second, 10*time.Millisecond)

	sink.Broadcast(Event{Name: EventNewReservation, Payload: NewReservationPayload{ReservationID: 999}})
	require.Eventually(t, func() bool {
		keys := prod.keys()
		return len(keys) > 0 && keys[len(keys)-1] == "999"
	}, 2*time.Second, 10*time.Millisecond)
}
