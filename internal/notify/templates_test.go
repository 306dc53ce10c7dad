package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"
)

func TestPostgresTemplates_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM notification_templates`).
		WithArgs("reservation_confirmed", "sms").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_name", "channel", "name", "subject", "body", "enabled"}).
			AddRow(3, "reservation_confirmed", "sms", "Potwierdzenie", "", "Cześć {{firstName}}", true))

	tmpl, err := NewPostgresTemplates(db).Get(context.Background(), "reservation_confirmed", ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "Cześć {{firstName}}", tmpl.Body)
	assert.True(t, tmpl.Enabled)
}

func TestPostgresTemplates_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM notification_templates`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_name", "channel", "name", "subject", "body", "enabled"}))

	_, err = NewPostgresTemplates(db).Get(context.Background(), "nope", ChannelEmail)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTemplateNotFound))
}

type stubTemplates struct {
	calls int
	get   func(event string, channel Channel) (*models.Template, error)
}

func (s *stubTemplates) Get(_ context.Context, event string, channel Channel) (*models.Template, error) {
	s.calls++
	return s.get(event, channel)
}

func TestCachedTemplates(t *testing.T) {
	tmpl := &models.Template{ID: 1, EventName: "course_reminder", Channel: "sms", Body: "Jutro kurs", Enabled: true}
	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	ttl := 5 * time.Minute

	t.Run("miss populates cache", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		next := &stubTemplates{get: func(string, Channel) (*models.Template, error) { return tmpl, nil }}
		c := NewCachedTemplates(next, rdb, ttl, logger.NewTestLogger(t))

		mock.ExpectGet("templates:course_reminder:sms").RedisNil()
		mock.ExpectSet("templates:course_reminder:sms", data, ttl).SetVal("OK")

		got, err := c.Get(context.Background(), "course_reminder", ChannelSMS)
		require.NoError(t, err)
		assert.Equal(t, "Jutro kurs", got.Body)
		assert.Equal(t, 1, next.calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit skips store", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		next := &stubTemplates{get: func(string, Channel) (*models.Template, error) { return nil, errors.New("unexpected") }}
		c := NewCachedTemplates(next, rdb, ttl, logger.NewTestLogger(t))

		mock.ExpectGet("templates:course_reminder:sms").SetVal(string(data))

		got, err := c.Get(context.Background(), "course_reminder", ChannelSMS)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, 0, next.calls)
	})

	t.Run("redis down falls back", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		next := &stubTemplates{get: func(string, Channel) (*models.Template, error) { return tmpl, nil }}
		c := NewCachedTemplates(next, rdb, ttl, logger.NewTestLogger(t))

		mock.ExpectGet("templates:course_reminder:sms").SetErr(errors.New("connection refused"))
		mock.ExpectSet("templates:course_reminder:sms", data, ttl).SetErr(errors.New("connection refused"))

		got, err := c.Get(context.Background(), "course_reminder", ChannelSMS)
		require.NoError(t, err)
		assert.Equal(t, "Jutro kurs", got.Body)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		next := &stubTemplates{get: func(e string, ch Channel) (*models.Template, error) {
			return nil, apperrors.NewTemplateNotFoundError(e, string(ch))
		}}
		c := NewCachedTemplates(next, rdb, ttl, logger.NewTestLogger(t))

		mock.ExpectGet("templates:x:email").RedisNil()

		_, err := c.Get(context.Background(), "x", ChannelEmail)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeTemplateNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
