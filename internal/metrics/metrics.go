// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowtrack"

// Mirror job outcomes.
const (
	OutcomeIndexed      = "indexed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDropped      = "dropped"
)

var (
	// ReconstructionSkipped counts events that produced no duration sample.
	ReconstructionSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconstruction_skipped_total",
		Help:      "Stage transitions skipped during duration reconstruction, by reason.",
	}, []string{"reason"})

	// ReconstructionClamped counts negative durations replaced with zero.
	ReconstructionClamped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconstruction_clamped_total",
		Help:      "Negative stage durations clamped to zero.",
	})

	MirrorJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_jobs_total",
		Help:      "Secondary index mirror jobs by kind and outcome.",
	}, []string{"kind", "outcome"})

	MirrorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mirror_queue_depth",
		Help:      "Mirror jobs waiting in the synchronizer queue.",
	})

	// DeadLettersUnpersisted counts dead letters that were logged but not stored
	// because the store failed or its buffer was full.
	DeadLettersUnpersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_unpersisted_total",
		Help:      "Dead letters that could not be written to the dead-letter store.",
	})

	SearchDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_degraded_total",
		Help:      "Searches answered from the primary store because the index was unavailable.",
	}, []string{"kind"})
)
