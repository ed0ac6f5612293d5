package config

import "time"

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; must be provided via flag or environment.
	DefaultDatabaseURL = ""

	// DefaultLogFormat is the default slog output format.
	DefaultLogFormat = "json"

	// DefaultElasticsearchURL is empty; search runs degraded without an index.
	DefaultElasticsearchURL = ""

	// DefaultIndexPrefix names the task and event indices <prefix>_tasks and <prefix>_events.
	DefaultIndexPrefix = "flowtrack"

	// DefaultMirrorWorkers is the number of goroutines applying index writes.
	DefaultMirrorWorkers = 4

	// DefaultMirrorQueueSize bounds pending index writes before they are dead-lettered.
	DefaultMirrorQueueSize = 1024

	// DefaultMirrorTimeout bounds a single index request.
	DefaultMirrorTimeout = 5 * time.Second

	// DefaultMirrorMaxAttempts is the number of tries per index write, including the first.
	DefaultMirrorMaxAttempts = 3

	// DefaultShutdownTimeout bounds graceful shutdown of the server and mirror queue.
	DefaultShutdownTimeout = 10 * time.Second
)
