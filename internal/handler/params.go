package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/flowtrack/internal/domain"
)

const dateLayout = "2006-01-02"

// queryParams reads typed query parameters and keeps the first parse error.
type queryParams struct {
	values url.Values
	err    error
}

func newQueryParams(values url.Values) *queryParams {
	return &queryParams{values: values}
}

func (q *queryParams) fail(format string, args ...any) {
	if q.err == nil {
		q.err = fmt.Errorf("%w: "+format, append([]any{domain.ErrValidation}, args...)...)
	}
}

func (q *queryParams) String(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

// UUID returns the canonical form of an optional UUID parameter.
func (q *queryParams) UUID(name string) string {
	value := q.String(name)
	if value == "" {
		return ""
	}
	id, err := uuid.Parse(value)
	if err != nil {
		q.fail("%s must be a valid UUID", name)
		return ""
	}
	return id.String()
}

// Int returns an optional non-negative integer parameter, or zero.
func (q *queryParams) Int(name string) int {
	value := q.String(name)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		q.fail("%s must be a non-negative integer", name)
		return 0
	}
	return n
}

// Start parses an optional lower time bound: RFC 3339 or a date meaning its first instant in UTC.
func (q *queryParams) Start(name string) *time.Time {
	return q.time(name, false)
}

// End parses an optional upper time bound: RFC 3339 or a date covering that whole UTC day.
func (q *queryParams) End(name string) *time.Time {
	return q.time(name, true)
}

func (q *queryParams) time(name string, endOfDay bool) *time.Time {
	value := q.String(name)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		q.fail("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
		return nil
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t
}

// Err returns the first parse error.
func (q *queryParams) Err() error {
	return q.err
}
