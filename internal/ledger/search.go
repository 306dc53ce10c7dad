package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"adr-workers/internal/common/database"
	"adr-workers/internal/common/metrics"
	"adr-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

// SearchMirror indexes delivery records into Elasticsearch for the admin
// delivery search. Documents are keyed by record ID so a replay overwrites.
type SearchMirror struct {
	client *elasticsearch.Client
	index  string
}

// searchMapping keeps identifiers and statuses exact-match and the message
// full-text searchable.
const searchMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "eventName":     {"type": "keyword"},
      "channel":       {"type": "keyword"},
      "recipient":     {"type": "keyword"},
      "message":       {"type": "text"},
      "providerRef":   {"type": "keyword"},
      "status":        {"type": "keyword"},
      "error":         {"type": "text"},
      "cost":          {"type": "scaled_float", "scaling_factor": 10000},
      "reservationId": {"type": "long"},
      "participantId": {"type": "long"},
      "createdAt":     {"type": "date"}
    }
  }
}`

func NewSearchMirror(client *elasticsearch.Client, index string) *SearchMirror {
	return &SearchMirror{client: client, index: index}
}

func (m *SearchMirror) Append(ctx context.Context, rec *models.DeliveryRecord) error {
	prepare(rec)

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal delivery record: %w", err)
	}

	res, err := m.client.Index(
		m.index,
		bytes.NewReader(body),
		m.client.Index.WithContext(ctx),
		m.client.Index.WithDocumentID(rec.ID),
	)
	if err != nil {
		metrics.LedgerAppendFailures.WithLabelValues("elasticsearch").Inc()
		return fmt.Errorf("index delivery record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.LedgerAppendFailures.WithLabelValues("elasticsearch").Inc()
		return fmt.Errorf("index delivery record: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the mirror index on first start.
func (m *SearchMirror) EnsureIndex(ctx context.Context) error {
	return database.EnsureIndex(ctx, m.client, m.index, searchMapping)
}
