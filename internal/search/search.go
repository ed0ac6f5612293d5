package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/mtlprog/flowtrack/internal/domain"
)

type searchHit struct {
	ID        string              `json:"_id"`
	Score     *float64            `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type aggregationBuckets struct {
	Buckets []struct {
		Key         any    `json:"key"`
		KeyAsString string `json:"key_as_string"`
		DocCount    int64  `json:"doc_count"`
	} `json:"buckets"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]aggregationBuckets `json:"aggregations"`
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(esutil.NewJSONReader(body)),
	)
	if err != nil {
		return nil, unavailable("search "+index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// A missing index is treated like an unreachable one so callers can degrade.
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: search %s: index not found", domain.ErrIndexUnavailable, index)
		}
		return nil, statusError("search "+index, res)
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &decoded, nil
}

// SearchTasks runs a fuzzy full-text query over task titles and descriptions.
// Title matches weigh twice as much as description matches.
func (c *Client) SearchTasks(ctx context.Context, organizationID, text string) ([]TaskHit, error) {
	res, err := c.search(ctx, c.tasksIndex, buildTaskSearch(organizationID, text))
	if err != nil {
		return nil, err
	}

	hits := make([]TaskHit, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc taskDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode task hit %s: %w", hit.ID, err)
		}
		if doc.TaskID == "" {
			doc.TaskID = hit.ID
		}

		h := TaskHit{Task: doc.toDomain(), Highlights: hit.Highlight}
		if hit.Score != nil {
			h.Score = *hit.Score
		}
		hits = append(hits, h)
	}

	return hits, nil
}

// SearchEvents returns indexed events matching q, newest first.
func (c *Client) SearchEvents(ctx context.Context, organizationID string, q EventQuery) ([]*domain.Event, error) {
	res, err := c.search(ctx, c.eventsIndex, buildEventSearch(organizationID, q))
	if err != nil {
		return nil, err
	}

	events := make([]*domain.Event, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc eventDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode event hit %s: %w", hit.ID, err)
		}
		if doc.EventID == "" {
			doc.EventID = hit.ID
		}
		events = append(events, doc.toDomain())
	}

	return events, nil
}

// Aggregate counts indexed events by type, target stage and calendar day.
func (c *Client) Aggregate(ctx context.Context, organizationID string, q AggregateQuery) (*Aggregations, error) {
	res, err := c.search(ctx, c.eventsIndex, buildAggregation(organizationID, q))
	if err != nil {
		return nil, err
	}

	return &Aggregations{
		EventTypes: buckets(res.Aggregations["by_event_type"]),
		Stages:     buckets(res.Aggregations["by_stage"]),
		Timeline:   buckets(res.Aggregations["events_over_time"]),
	}, nil
}

func buckets(agg aggregationBuckets) []Bucket {
	out := make([]Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key := b.KeyAsString
		if key == "" {
			key = fmt.Sprint(b.Key)
		}
		out = append(out, Bucket{Key: key, Count: b.DocCount})
	}
	return out
}
