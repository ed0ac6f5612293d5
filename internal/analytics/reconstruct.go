// Package analytics derives per-stage dwell times, bottlenecks and completion
// trends from the event log. Every function here is pure: it reads an immutable
// snapshot of events and holds no shared state, so computations for different
// workflows can run concurrently without coordination.
package analytics

import (
	"slices"
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
)

// SkipReason explains why an event contributed no duration sample.
type SkipReason string

const (
	// SkipUnknownFromStage marks a stage change out of a stage the task was never seen entering.
	SkipUnknownFromStage SkipReason = "unknown_from_stage"
	// SkipMissingToStage marks a creation or stage change without a target stage.
	SkipMissingToStage SkipReason = "missing_to_stage"
	// SkipCompletedStageNotEntered marks a completion in a stage the task was never seen entering.
	SkipCompletedStageNotEntered SkipReason = "completed_stage_not_entered"
)

// StageStat is the average dwell time of one stage.
type StageStat struct {
	AverageHours float64 `json:"averageHours"`
	TaskCount    int     `json:"taskCount"`
}

// Skip records one event excluded from the averages.
type Skip struct {
	EventID string
	TaskID  string
	Stage   string
	Reason  SkipReason
}

// Clamp records a negative duration that was replaced with zero.
type Clamp struct {
	EventID string
	TaskID  string
	Stage   string
	Hours   float64
}

// Result is the output of Reconstruct.
// Stages without any observed sample are omitted rather than reported as zero.
type Result struct {
	Stages  map[string]StageStat
	Skipped []Skip
	Clamped []Clamp
}

// Dwell returns the hours between entering and leaving a stage. A negative
// span is clamped to zero and reported.
func Dwell(entered, left time.Time) (hours float64, clamped bool) {
	hours = left.Sub(entered).Hours()
	if hours < 0 {
		return 0, true
	}
	return hours, false
}

type accumulator struct {
	sumHours float64
	count    int
}

// Reconstruct computes per-stage average dwell time from task_created,
// stage_changed and task_completed events of one workflow. Other event types are
// ignored. The input slice is not modified.
//
// Events are ordered by (task, timestamp); ties on timestamp fall back to event
// type rank and then event id, never to input position. Since a stage is only
// entered by an earlier event, clock skew between writers surfaces as skipped
// transitions (an exit sorted before its entry) rather than negative samples.
// Every sample still goes through Dwell, and any clamp it reports is recorded
// in Result.Clamped.
func Reconstruct(events []*domain.Event) Result {
	ordered := slices.Clone(events)
	slices.SortFunc(ordered, func(a, b *domain.Event) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})

	acc := make(map[string]*accumulator)
	result := Result{Stages: make(map[string]StageStat)}

	// entries maps stage name to entry time for the task currently being walked.
	var entries map[string]time.Time
	currentTask := ""

	sample := func(event *domain.Event, stage string, entered time.Time) {
		hours, clamped := Dwell(entered, event.Timestamp)
		if clamped {
			result.Clamped = append(result.Clamped, Clamp{
				EventID: event.ID,
				TaskID:  event.TaskID,
				Stage:   stage,
				Hours:   event.Timestamp.Sub(entered).Hours(),
			})
		}
		a, ok := acc[stage]
		if !ok {
			a = &accumulator{}
			acc[stage] = a
		}
		a.sumHours += hours
		a.count++
		delete(entries, stage)
	}

	skip := func(event *domain.Event, stage string, reason SkipReason) {
		result.Skipped = append(result.Skipped, Skip{
			EventID: event.ID,
			TaskID:  event.TaskID,
			Stage:   stage,
			Reason:  reason,
		})
	}

	for _, event := range ordered {
		if event.TaskID != currentTask {
			currentTask = event.TaskID
			entries = make(map[string]time.Time)
		}

		switch event.Type {
		case domain.EventTypeTaskCreated:
			to := event.ToStageName()
			if to == "" {
				skip(event, "", SkipMissingToStage)
				continue
			}
			entries[to] = event.Timestamp

		case domain.EventTypeStageChanged:
			if from := event.FromStageName(); from != "" {
				if entered, ok := entries[from]; ok {
					sample(event, from, entered)
				} else {
					skip(event, from, SkipUnknownFromStage)
				}
			}
			to := event.ToStageName()
			if to == "" {
				skip(event, "", SkipMissingToStage)
				continue
			}
			entries[to] = event.Timestamp

		case domain.EventTypeTaskCompleted:
			final := event.ToStageName()
			if entered, ok := entries[final]; ok && final != "" {
				sample(event, final, entered)
			} else {
				skip(event, final, SkipCompletedStageNotEntered)
			}
		}
	}

	for stage, a := range acc {
		result.Stages[stage] = StageStat{
			AverageHours: a.sumHours / float64(a.count),
			TaskCount:    a.count,
		}
	}

	return result
}
