package analytics

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
)

// GroupBy selects the bucket size of a completion timeline.
type GroupBy string

const (
	GroupByDay  GroupBy = "day"
	GroupByWeek GroupBy = "week"
)

// ParseGroupBy validates a group-by value. An empty value means day.
func ParseGroupBy(value string) (GroupBy, error) {
	switch GroupBy(value) {
	case "", GroupByDay:
		return GroupByDay, nil
	case GroupByWeek:
		return GroupByWeek, nil
	default:
		return "", fmt.Errorf("%w: group by must be day or week, got %q", domain.ErrValidation, value)
	}
}

// TimelinePoint is the number of completions in one bucket.
type TimelinePoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// BucketKey returns the bucket label for t: "2006-01-02" per UTC day, or the
// ISO week "2006-W01" using the ISO year, so 2021-01-01 falls in 2020-W53.
func BucketKey(t time.Time, groupBy GroupBy) string {
	t = t.UTC()
	if groupBy == GroupByWeek {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return t.Format(time.DateOnly)
}

// BucketCompletions counts timestamps per bucket, ascending by key.
// Buckets without completions are omitted, so the series can be sparse.
func BucketCompletions(times []time.Time, groupBy GroupBy) []TimelinePoint {
	counts := make(map[string]int)
	for _, t := range times {
		counts[BucketKey(t, groupBy)]++
	}

	points := make([]TimelinePoint, 0, len(counts))
	for key, count := range counts {
		points = append(points, TimelinePoint{Date: key, Count: count})
	}
	slices.SortFunc(points, func(a, b TimelinePoint) int {
		return cmp.Compare(a.Date, b.Date)
	})

	return points
}
