package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mtlprog/flowtrack/internal/analytics"
)

func TestRankBottlenecks(t *testing.T) {
	tests := []struct {
		name   string
		stages map[string]analytics.StageStat
		want   []string
	}{
		{
			name:   "empty",
			stages: map[string]analytics.StageStat{},
			want:   []string{},
		},
		{
			name: "descending by average",
			stages: map[string]analytics.StageStat{
				"Backlog":     {AverageHours: 10, TaskCount: 1},
				"In Progress": {AverageHours: 24, TaskCount: 1},
				"Review":      {AverageHours: 2, TaskCount: 3},
			},
			want: []string{"In Progress", "Backlog", "Review"},
		},
		{
			name: "ties broken by stage name",
			stages: map[string]analytics.StageStat{
				"Review": {AverageHours: 5, TaskCount: 1},
				"Deploy": {AverageHours: 5, TaskCount: 2},
				"Build":  {AverageHours: 1, TaskCount: 1},
			},
			want: []string{"Deploy", "Review", "Build"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := analytics.RankBottlenecks(tt.stages)

			got := make([]string, 0, len(ranked))
			for _, b := range ranked {
				got = append(got, b.Stage)
				assert.Equal(t, tt.stages[b.Stage].AverageHours, b.AverageHours)
				assert.Equal(t, tt.stages[b.Stage].TaskCount, b.TaskCount)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
