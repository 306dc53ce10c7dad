package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// TemplateStore returns the template for an event and channel, or a
// TEMPLATE_NOT_FOUND error when none exists.
type TemplateStore interface {
	Get(ctx context.Context, event string, channel Channel) (*models.Template, error)
}

type PostgresTemplates struct {
	db *sql.DB
}

func NewPostgresTemplates(db *sql.DB) *PostgresTemplates {
	return &PostgresTemplates{db: db}
}

func (s *PostgresTemplates) Get(ctx context.Context, event string, channel Channel) (*models.Template, error) {
	const query = `
		SELECT id, event_name, channel, name, subject, body, enabled
		FROM notification_templates
		WHERE event_name = $1 AND channel = $2`

	var t models.Template
	err := s.db.QueryRowContext(ctx, query, event, string(channel)).
		Scan(&t.ID, &t.EventName, &t.Channel, &t.Name, &t.Subject, &t.Body, &t.Enabled)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewTemplateNotFoundError(event, string(channel))
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get template", err)
	}
	return &t, nil
}

// CachedTemplates is a read-through Redis cache in front of another store.
// Redis failures fall back to the underlying store.
type CachedTemplates struct {
	next   TemplateStore
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedTemplates(next TemplateStore, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedTemplates {
	return &CachedTemplates{next: next, rdb: rdb, ttl: ttl, logger: log}
}

func templateKey(event string, channel Channel) string {
	return fmt.Sprintf("templates:%s:%s", event, channel)
}

func (c *CachedTemplates) Get(ctx context.Context, event string, channel Channel) (*models.Template, error) {
	key := templateKey(event, channel)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t models.Template
		if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
			return &t, nil
		}
		c.logger.Warn("discarding corrupt cached template", map[string]interface{}{"key": key})
	case !stderrors.Is(err, redis.Nil):
		c.logger.Warn("template cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	t, err := c.next.Get(ctx, event, channel)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(t); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("template cache write failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return t, nil
}

// Invalidate drops cached copies of an event's templates.
func (c *CachedTemplates) Invalidate(ctx context.Context, event string) error {
	return c.rdb.Del(ctx, templateKey(event, ChannelSMS), templateKey(event, ChannelEmail)).Err()
}
