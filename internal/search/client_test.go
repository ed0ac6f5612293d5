package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/search"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
}

// fakeCluster answers every request with the response registered for its
// method and path, or 404 when none is registered.
type fakeCluster struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	requests  []recordedRequest
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	f := &fakeCluster{responses: map[string]fakeResponse{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCluster) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeCluster) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: string(body)})
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		resp = fakeResponse{status: http.StatusNotFound, body: `{"error":{"type":"not_found"}}`}
	}

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func requestTo(t *testing.T, f *fakeCluster, method, path string) recordedRequest {
	t.Helper()
	for _, req := range f.recorded() {
		if req.Method == method && req.Path == path {
			return req
		}
	}
	t.Fatalf("no %s %s request", method, path)
	return recordedRequest{}
}

func newClient(t *testing.T, url string) *search.Client {
	t.Helper()
	client, err := search.New(search.Config{URL: url})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := search.New(search.Config{})
	assert.Error(t, err)
}

func TestNew_IndexPrefix(t *testing.T) {
	client, err := search.New(search.Config{URL: "http://localhost:9200"})
	require.NoError(t, err)
	assert.Equal(t, "flowtrack_tasks", client.TasksIndex())
	assert.Equal(t, "flowtrack_events", client.EventsIndex())

	client, err = search.New(search.Config{URL: "http://localhost:9200", IndexPrefix: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging_tasks", client.TasksIndex())
	assert.Equal(t, "staging_events", client.EventsIndex())
}

func TestClient_SearchTasks(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodPost, "/flowtrack_tasks/_search", http.StatusOK, `{
		"hits": {"hits": [
			{
				"_id": "task-1",
				"_score": 3.5,
				"_source": {
					"taskId": "task-1",
					"title": "Fix login bug",
					"description": "Users cannot log in",
					"organizationId": "org-1",
					"workflowId": "wf-1",
					"currentStage": "Doing",
					"status": "active",
					"createdAt": "2024-03-01T10:00:00Z",
					"updatedAt": "2024-03-02T10:00:00Z"
				},
				"highlight": {"title": ["Fix <em>login</em> bug"]}
			}
		]}
	}`)

	hits, err := newClient(t, srv.URL).SearchTasks(context.Background(), "org-1", "login")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	assert.Equal(t, "task-1", hits[0].Task.ID)
	assert.Equal(t, "Fix login bug", hits[0].Task.Title)
	assert.Equal(t, domain.TaskStatusActive, hits[0].Task.Status)
	assert.InDelta(t, 3.5, hits[0].Score, 1e-9)
	assert.Equal(t, []string{"Fix <em>login</em> bug"}, hits[0].Highlights["title"])

	requests := cluster.recorded()
	require.NotEmpty(t, requests)
	last := requests[len(requests)-1]
	assert.Equal(t, "/flowtrack_tasks/_search", last.Path)
	assert.Contains(t, last.Body, `"multi_match"`)
	assert.Contains(t, last.Body, `"organizationId":"org-1"`)
}

func TestClient_SearchEvents(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodPost, "/custom_events/_search", http.StatusOK, `{
		"hits": {"hits": [
			{
				"_id": "evt-2",
				"_score": null,
				"_source": {
					"eventType": "stage_changed",
					"organizationId": "org-1",
					"userId": "user-1",
					"taskId": "task-1",
					"workflowId": "wf-1",
					"fromStage": "Todo",
					"toStage": "Doing",
					"timestamp": "2024-03-02T10:00:00Z"
				}
			}
		]}
	}`)

	client, err := search.New(search.Config{URL: srv.URL, IndexPrefix: "custom"})
	require.NoError(t, err)

	events, err := client.SearchEvents(context.Background(), "org-1", search.EventQuery{TaskID: "task-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "evt-2", event.ID, "falls back to the document id")
	assert.Equal(t, domain.EventTypeStageChanged, event.Type)
	assert.Equal(t, "Todo", event.FromStageName())
	assert.Equal(t, "Doing", event.ToStageName())
	assert.True(t, event.Timestamp.Equal(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)))
}

func TestClient_Aggregate(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodPost, "/flowtrack_events/_search", http.StatusOK, `{
		"hits": {"hits": []},
		"aggregations": {
			"by_event_type": {"buckets": [{"key": "stage_changed", "doc_count": 7}, {"key": "task_created", "doc_count": 3}]},
			"by_stage": {"buckets": [{"key": "Doing", "doc_count": 4}]},
			"events_over_time": {"buckets": [{"key": 1709251200000, "key_as_string": "2024-03-01", "doc_count": 10}]}
		}
	}`)

	aggs, err := newClient(t, srv.URL).Aggregate(context.Background(), "org-1", search.AggregateQuery{})
	require.NoError(t, err)

	assert.Equal(t, []search.Bucket{{Key: "stage_changed", Count: 7}, {Key: "task_created", Count: 3}}, aggs.EventTypes)
	assert.Equal(t, []search.Bucket{{Key: "Doing", Count: 4}}, aggs.Stages)
	assert.Equal(t, []search.Bucket{{Key: "2024-03-01", Count: 10}}, aggs.Timeline)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		wantUnavailable bool
	}{
		{"server error", http.StatusServiceUnavailable, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"missing index", http.StatusNotFound, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster, srv := newFakeCluster(t)
			cluster.on(http.MethodPost, "/flowtrack_tasks/_search", tt.status, `{"error":{"type":"x"}}`)

			_, err := newClient(t, srv.URL).SearchTasks(context.Background(), "org-1", "q")
			require.Error(t, err)
			assert.Equal(t, tt.wantUnavailable, errors.Is(err, domain.ErrIndexUnavailable))
		})
	}
}

func TestClient_UnreachableCluster(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newClient(t, url)

	err := client.IndexTask(context.Background(), &domain.Task{ID: "task-1"})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	_, err = client.SearchTasks(context.Background(), "org-1", "q")
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestClient_IndexDocuments(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodPut, "/flowtrack_tasks/_doc/task-1", http.StatusCreated, `{"result":"created"}`)
	cluster.on(http.MethodPut, "/flowtrack_events/_doc/evt-1", http.StatusCreated, `{"result":"created"}`)

	client := newClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.IndexTask(ctx, &domain.Task{
		ID:             "task-1",
		OrganizationID: "org-1",
		Title:          "Write docs",
		Status:         domain.TaskStatusActive,
	}))
	require.NoError(t, client.IndexEvent(ctx, &domain.Event{
		ID:             "evt-1",
		Type:           domain.EventTypeTaskCreated,
		OrganizationID: "org-1",
		ToStage:        domain.StagePtr("Todo"),
	}))

	var requests []recordedRequest
	for _, req := range cluster.recorded() {
		if req.Method == http.MethodPut {
			requests = append(requests, req)
		}
	}
	require.Len(t, requests, 2)

	var taskDoc map[string]any
	require.NoError(t, json.Unmarshal([]byte(requests[0].Body), &taskDoc))
	assert.Equal(t, "task-1", taskDoc["taskId"])
	assert.Equal(t, "Write docs", taskDoc["title"])
	assert.Equal(t, "org-1", taskDoc["organizationId"])

	var eventDoc map[string]any
	require.NoError(t, json.Unmarshal([]byte(requests[1].Body), &eventDoc))
	assert.Equal(t, "evt-1", eventDoc["eventId"])
	assert.Equal(t, "task_created", eventDoc["eventType"])
	assert.Equal(t, "Todo", eventDoc["toStage"])
	assert.NotContains(t, eventDoc, "fromStage")
}

func TestClient_IndexTaskIsVersioned(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodPut, "/flowtrack_tasks/_doc/task-1", http.StatusCreated, `{"result":"created"}`)
	cluster.on(http.MethodPut, "/flowtrack_tasks/_doc/task-stale", http.StatusConflict,
		`{"error":{"type":"version_conflict_engine_exception"},"status":409}`)

	client := newClient(t, srv.URL)
	ctx := context.Background()
	updatedAt := time.Date(2024, 5, 1, 8, 0, 0, 123456000, time.UTC)

	require.NoError(t, client.IndexTask(ctx, &domain.Task{ID: "task-1", UpdatedAt: updatedAt}))
	assert.NoError(t, client.IndexTask(ctx, &domain.Task{ID: "task-stale", UpdatedAt: updatedAt}),
		"a newer stored version means this state is already superseded")

	req := requestTo(t, cluster, http.MethodPut, "/flowtrack_tasks/_doc/task-1")
	assert.Equal(t, strconv.FormatInt(updatedAt.UnixNano(), 10), req.Query.Get("version"))
	assert.Equal(t, "external_gte", req.Query.Get("version_type"))
}

func TestClient_DeleteTask(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodDelete, "/flowtrack_tasks/_doc/present", http.StatusOK, `{"result":"deleted"}`)
	cluster.on(http.MethodDelete, "/flowtrack_tasks/_doc/newer", http.StatusConflict,
		`{"error":{"type":"version_conflict_engine_exception"},"status":409}`)
	cluster.on(http.MethodDelete, "/flowtrack_tasks/_doc/broken", http.StatusInternalServerError, `{}`)

	client := newClient(t, srv.URL)
	ctx := context.Background()
	deletedAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	assert.NoError(t, client.DeleteTask(ctx, "present", deletedAt))
	assert.NoError(t, client.DeleteTask(ctx, "missing", deletedAt), "a missing document is already deleted")
	assert.NoError(t, client.DeleteTask(ctx, "newer", deletedAt))
	assert.ErrorIs(t, client.DeleteTask(ctx, "broken", deletedAt), domain.ErrIndexUnavailable)

	req := requestTo(t, cluster, http.MethodDelete, "/flowtrack_tasks/_doc/present")
	assert.Equal(t, strconv.FormatInt(deletedAt.UnixNano(), 10), req.Query.Get("version"))
	assert.Equal(t, "external_gte", req.Query.Get("version_type"))
}

func TestClient_EnsureIndices(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodHead, "/flowtrack_tasks", http.StatusOK, ``)
	cluster.on(http.MethodPut, "/flowtrack_events", http.StatusOK, `{"acknowledged":true}`)

	require.NoError(t, newClient(t, srv.URL).EnsureIndices(context.Background()))

	var created []recordedRequest
	for _, req := range cluster.recorded() {
		if req.Method == http.MethodPut {
			created = append(created, req)
		}
	}
	require.Len(t, created, 1, "only the missing index is created")
	assert.Equal(t, "/flowtrack_events", created[0].Path)
	assert.Contains(t, created[0].Body, `"mappings"`)
	assert.Contains(t, created[0].Body, `"enabled":false`)
}

func TestClient_EnsureIndicesAlreadyExists(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodHead, "/flowtrack_tasks", http.StatusOK, ``)
	cluster.on(http.MethodPut, "/flowtrack_events", http.StatusBadRequest,
		`{"error":{"type":"resource_already_exists_exception"}}`)

	assert.NoError(t, newClient(t, srv.URL).EnsureIndices(context.Background()))
}

func TestClient_Ping(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.on(http.MethodHead, "/", http.StatusOK, ``)

	assert.NoError(t, newClient(t, srv.URL).Ping(context.Background()))

	srv.Close()
	assert.ErrorIs(t, newClient(t, srv.URL).Ping(context.Background()), domain.ErrIndexUnavailable)
}
