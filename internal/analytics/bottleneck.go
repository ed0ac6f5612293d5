package analytics

import (
	"cmp"
	"slices"
)

// Bottleneck is one stage in the ranked view of dwell times.
type Bottleneck struct {
	Stage        string  `json:"stage"`
	AverageHours float64 `json:"averageHours"`
	TaskCount    int     `json:"taskCount"`
}

// RankBottlenecks orders stages by descending average dwell time.
// Equal averages are ordered by ascending stage name so the ranking is total.
func RankBottlenecks(stages map[string]StageStat) []Bottleneck {
	ranked := make([]Bottleneck, 0, len(stages))
	for stage, stat := range stages {
		ranked = append(ranked, Bottleneck{
			Stage:        stage,
			AverageHours: stat.AverageHours,
			TaskCount:    stat.TaskCount,
		})
	}

	slices.SortFunc(ranked, func(a, b Bottleneck) int {
		if c := cmp.Compare(b.AverageHours, a.AverageHours); c != 0 {
			return c
		}
		return cmp.Compare(a.Stage, b.Stage)
	})

	return ranked
}
