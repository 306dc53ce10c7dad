package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
)

func sampleRecord() *models.DeliveryRecord {
	rid := int64(42)
	return &models.DeliveryRecord{
		EventName:     "reservation_confirmed",
		Channel:       "sms",
		Recipient:     "48606646095",
		Message:       "Cześć Jan!",
		ProviderRef:   "abc123",
		Status:        models.DeliverySent,
		ReservationID: &rid,
	}
}

func TestPostgresLedger_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := sampleRecord()
	mock.ExpectExec(`INSERT INTO delivery_log`).
		WithArgs(sqlmock.AnyArg(), "reservation_confirmed", "sms", "48606646095", "Cześć Jan!", "abc123",
			"sent", "", nil, int64(42), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresLedger(db).Append(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_AppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO delivery_log`).WillReturnError(errors.New("relation does not exist"))

	err = NewPostgresLedger(db).Append(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "append delivery record")
}

type recordingLedger struct {
	mu   sync.Mutex
	recs []*models.DeliveryRecord
	err  error
}

func (r *recordingLedger) Append(_ context.Context, rec *models.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.recs = append(r.recs, rec)
	return nil
}

func TestFanout(t *testing.T) {
	t.Run("mirror failure is swallowed", func(t *testing.T) {
		primary := &recordingLedger{}
		mirror := &recordingLedger{err: errors.New("cluster red")}
		f := NewFanout(primary, logger.NewTestLogger(t), mirror)

		require.NoError(t, f.Append(context.Background(), sampleRecord()))
		assert.Len(t, primary.recs, 1)
	})

	t.Run("primary failure skips mirrors", func(t *testing.T) {
		primary := &recordingLedger{err: errors.New("db down")}
		mirror := &recordingLedger{}
		f := NewFanout(primary, logger.NewTestLogger(t), mirror)

		assert.Error(t, f.Append(context.Background(), sampleRecord()))
		assert.Empty(t, mirror.recs)
	})

	t.Run("sinks share the record id", func(t *testing.T) {
		primary := &recordingLedger{}
		mirror := &recordingLedger{}
		f := NewFanout(primary, logger.NewTestLogger(t), mirror)

		require.NoError(t, f.Append(context.Background(), sampleRecord()))
		require.Len(t, mirror.recs, 1)
		assert.Equal(t, primary.recs[0].ID, mirror.recs[0].ID)
	})
}

func newTestES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestSearchMirror_Append(t *testing.T) {
	var (
		gotPath string
		gotDoc  map[string]interface{}
	)
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	rec := sampleRecord()
	rec.ID = "6f1c1f9e-0000-4000-8000-000000000001"
	require.NoError(t, NewSearchMirror(client, "delivery-log").Append(context.Background(), rec))

	assert.True(t, strings.HasPrefix(gotPath, "/delivery-log/_doc/"+rec.ID), gotPath)
	assert.Equal(t, "reservation_confirmed", gotDoc["eventName"])
	assert.Equal(t, "sent", gotDoc["status"])
}

func TestSearchMirror_ErrorStatus(t *testing.T) {
	client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := NewSearchMirror(client, "delivery-log").Append(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "400")
}

func TestSearchMirror_EnsureIndex(t *testing.T) {
	tests := []struct {
		name        string
		existsCode  int
		wantCreated bool
		wantErr     bool
	}{
		{name: "creates missing index", existsCode: http.StatusNotFound, wantCreated: true},
		{name: "keeps existing index", existsCode: http.StatusOK},
		{name: "cluster error", existsCode: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu      sync.Mutex
				created string
			)
			client := newTestES(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodHead:
					w.WriteHeader(tt.existsCode)
				case http.MethodPut:
					body, _ := io.ReadAll(r.Body)
					mu.Lock()
					created = string(body)
					mu.Unlock()
					_, _ = w.Write([]byte(`{"acknowledged":true}`))
				default:
					w.WriteHeader(http.StatusMethodNotAllowed)
				}
			})

			err := NewSearchMirror(client, "delivery-log").EnsureIndex(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if tt.wantCreated {
				assert.Contains(t, created, `"eventName":     {"type": "keyword"}`)
			} else {
				assert.Empty(t, created)
			}
		})
	}
}
