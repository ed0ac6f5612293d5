package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// versionType makes Elasticsearch keep the highest version it has seen for a
// document, so a stale write or a write after a delete is rejected.
const versionType = "external_gte"

// taskVersion orders task documents by the record's updated_at.
func taskVersion(t time.Time) int {
	return int(t.UnixNano())
}

// IndexTask upserts the task document keyed by task id. Writes carry the
// task's updated_at as an external version; one older than the stored
// document is a version conflict, which means a newer state is already
// indexed and is not an error.
func (c *Client) IndexTask(ctx context.Context, task *domain.Task) error {
	res, err := c.es.Index(
		c.tasksIndex,
		esutil.NewJSONReader(newTaskDocument(task)),
		c.es.Index.WithDocumentID(task.ID),
		c.es.Index.WithVersion(taskVersion(task.UpdatedAt)),
		c.es.Index.WithVersionType(versionType),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return unavailable("index "+task.ID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		slog.Debug("stale task document skipped", "task_id", task.ID, "updated_at", task.UpdatedAt)
		return nil
	}
	if res.IsError() {
		return statusError("index "+task.ID, res)
	}
	return nil
}

// IndexEvent upserts the event document keyed by event id.
// Events are immutable, so repeated writes are idempotent.
func (c *Client) IndexEvent(ctx context.Context, event *domain.Event) error {
	res, err := c.es.Index(
		c.eventsIndex,
		esutil.NewJSONReader(newEventDocument(event)),
		c.es.Index.WithDocumentID(event.ID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return unavailable("index "+event.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return statusError("index "+event.ID, res)
	}
	return nil
}

// DeleteTask removes the task document at the given version, which must be
// later than every state the task had. A missing document or a newer stored
// version is not an error.
func (c *Client) DeleteTask(ctx context.Context, taskID string, version time.Time) error {
	res, err := c.es.Delete(
		c.tasksIndex,
		taskID,
		c.es.Delete.WithVersion(taskVersion(version)),
		c.es.Delete.WithVersionType(versionType),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return unavailable("delete "+taskID, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusNotFound, http.StatusConflict:
		return nil
	}
	if res.IsError() {
		return statusError("delete "+taskID, res)
	}
	return nil
}

// BulkStats summarises a bulk reindex. Stale counts task documents skipped
// because the index already held a newer version.
type BulkStats struct {
	Indexed uint64
	Failed  uint64
	Stale   uint64
}

// Reindex streams tasks and events into the indices with the bulk API.
// Task documents are versioned like IndexTask; nothing is deleted.
func (c *Client) Reindex(
	ctx context.Context,
	tasks iter.Seq2[*domain.Task, error],
	events iter.Seq2[*domain.Event, error],
) (BulkStats, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: c.es,
		OnError: func(_ context.Context, err error) {
			slog.Error("bulk indexer error", "error", err)
		},
	})
	if err != nil {
		return BulkStats{}, fmt.Errorf("create bulk indexer: %w", err)
	}

	var stale atomic.Uint64
	add := func(index, id string, version *int64, doc any) error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", id, err)
		}
		item := esutil.BulkIndexerItem{
			Action:     "index",
			Index:      index,
			DocumentID: id,
			Body:       bytes.NewReader(data),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					slog.Warn("bulk item failed", "index", item.Index, "id", item.DocumentID, "error", err)
					return
				}
				if res.Status == http.StatusConflict {
					stale.Add(1)
					return
				}
				slog.Warn("bulk item rejected",
					"index", item.Index,
					"id", item.DocumentID,
					"type", res.Error.Type,
					"reason", res.Error.Reason,
				)
			},
		}
		if version != nil {
			item.Version = version
			item.VersionType = versionType
		}
		return bi.Add(ctx, item)
	}

	var addErr error
	for task, err := range tasks {
		if err != nil {
			addErr = err
			break
		}
		version := int64(taskVersion(task.UpdatedAt))
		if addErr = add(c.tasksIndex, task.ID, &version, newTaskDocument(task)); addErr != nil {
			break
		}
	}
	if addErr == nil {
		for event, err := range events {
			if err != nil {
				addErr = err
				break
			}
			if addErr = add(c.eventsIndex, event.ID, nil, newEventDocument(event)); addErr != nil {
				break
			}
		}
	}

	if err := bi.Close(ctx); err != nil && addErr == nil {
		addErr = fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	return BulkStats{
		Indexed: stats.NumIndexed,
		Failed:  stats.NumFailed - stale.Load(),
		Stale:   stale.Load(),
	}, addErr
}
