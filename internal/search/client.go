// Package search is the Elasticsearch backend of the secondary index.
// It owns the index mappings, builds queries and decodes results into domain
// types. Failures to reach the cluster are reported as domain.ErrIndexUnavailable.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// DefaultIndexPrefix names the indices when no prefix is configured.
const DefaultIndexPrefix = "flowtrack"

// Config holds the connection settings for the cluster.
// APIKey takes precedence over Username/Password.
type Config struct {
	URL         string
	APIKey      string
	Username    string
	Password    string
	IndexPrefix string
}

// Client talks to Elasticsearch.
type Client struct {
	es          *elasticsearch.Client
	tasksIndex  string
	eventsIndex string
}

// New creates a Client. It does not contact the cluster; call Ping for that.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch url is required")
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		// Retries are owned by the index synchronizer.
		DisableRetry: true,
	}
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = DefaultIndexPrefix
	}

	return &Client{
		es:          es,
		tasksIndex:  prefix + "_tasks",
		eventsIndex: prefix + "_events",
	}, nil
}

// TasksIndex returns the name of the task index.
func (c *Client) TasksIndex() string { return c.tasksIndex }

// EventsIndex returns the name of the event index.
func (c *Client) EventsIndex() string { return c.eventsIndex }

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return unavailable("ping", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: ping: %s", domain.ErrIndexUnavailable, res.Status())
	}
	return nil
}

// EnsureIndices creates the task and event indices when they are missing.
func (c *Client) EnsureIndices(ctx context.Context) error {
	for index, mapping := range map[string]map[string]any{
		c.tasksIndex:  taskMapping,
		c.eventsIndex: eventMapping,
	} {
		if err := c.ensureIndex(ctx, index, mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, index string, mapping map[string]any) error {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return unavailable("check index "+index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return statusError("check index "+index, res)
	}

	res, err = c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithBody(esutil.NewJSONReader(map[string]any{"mappings": mapping})),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return unavailable("create index "+index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// Another instance may have created it between the check and the create.
		if res.StatusCode == http.StatusBadRequest && errorType(res) == "resource_already_exists_exception" {
			return nil
		}
		return statusError("create index "+index, res)
	}

	slog.Info("created search index", "index", index)
	return nil
}

// unavailable wraps a transport failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, op, err)
}

// statusError converts an error response. Server-side failures and throttling
// mean the index is unavailable; anything else is a request problem.
func statusError(op string, res *esapi.Response) error {
	if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: %s", domain.ErrIndexUnavailable, op, res.Status())
	}
	return fmt.Errorf("%s: %s", op, res.Status())
}

// errorType extracts error.type from an Elasticsearch error body.
func errorType(res *esapi.Response) string {
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error.Type
}
