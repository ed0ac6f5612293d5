package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stage is a named step in a workflow. Names are unique within a workflow.
type Stage struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Workflow is an ordered pipeline of stages owned by one organization.
type Workflow struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	Stages         []Stage
	CreatedBy      string
	CreatedAt      time.Time
}

// HasStage reports whether the workflow currently defines a stage with the given name.
func (w *Workflow) HasStage(name string) bool {
	for _, stage := range w.Stages {
		if stage.Name == name {
			return true
		}
	}
	return false
}

// InitialStage returns the stage with the lowest order.
func (w *Workflow) InitialStage() (string, bool) {
	if len(w.Stages) == 0 {
		return "", false
	}
	first := w.Stages[0]
	for _, stage := range w.Stages[1:] {
		if stage.Order < first.Order {
			first = stage
		}
	}
	return first.Name, true
}

// NormalizeStages trims names, checks uniqueness and sorts by order.
// Stages are expected to carry an explicit order; callers fill it from list position when absent.
func NormalizeStages(stages []Stage) ([]Stage, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: at least one stage is required", ErrValidation)
	}

	seen := make(map[string]bool, len(stages))
	normalized := make([]Stage, 0, len(stages))
	for _, stage := range stages {
		name := strings.TrimSpace(stage.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: stage name is required", ErrValidation)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrValidation, name)
		}
		seen[name] = true
		normalized = append(normalized, Stage{Name: name, Order: stage.Order})
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Order < normalized[j].Order
	})

	return normalized, nil
}
