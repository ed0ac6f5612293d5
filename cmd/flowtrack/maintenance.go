package main

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/repository"
)

// runReindex rebuilds both indices from Postgres, one organization at a time.
func runReindex(c *cli.Context) error {
	ctx := c.Context
	startedAt := time.Now()

	client, err := newSearchClient(c)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("reindex requires --elasticsearch-url")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := client.Ping(ctx); err != nil {
		return err
	}
	if err := client.EnsureIndices(ctx); err != nil {
		return err
	}

	eventRepo := repository.NewEventRepository(db.Pool())
	taskRepo := repository.NewTaskRepository(db.Pool())

	organizations, err := eventRepo.Organizations(ctx)
	if err != nil {
		return err
	}

	tasks := eachOrganization(organizations, func(organizationID string) iter.Seq2[*domain.Task, error] {
		return taskRepo.All(ctx, organizationID)
	})
	events := eachOrganization(organizations, func(organizationID string) iter.Seq2[*domain.Event, error] {
		return eventRepo.Query(ctx, repository.EventFilter{OrganizationID: organizationID}, repository.QueryOptions{Ascending: true})
	})

	stats, err := client.Reindex(ctx, tasks, events)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	slog.Info("reindex finished",
		"organizations", len(organizations),
		"indexed", stats.Indexed,
		"failed", stats.Failed,
		"stale", stats.Stale,
		"duration", time.Since(startedAt),
	)

	if stats.Failed > 0 {
		return fmt.Errorf("reindex: %d documents failed", stats.Failed)
	}

	if c.Bool("purge-dead-letters") {
		removed, err := repository.NewDeadLetterRepository(db.Pool()).DeleteBefore(ctx, startedAt)
		if err != nil {
			return err
		}
		slog.Info("dead letters purged", "removed", removed)
	}

	return nil
}

// eachOrganization concatenates per-organization sequences.
func eachOrganization[T any](organizations []string, seq func(string) iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, organizationID := range organizations {
			for item, err := range seq(organizationID) {
				if !yield(item, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}

func runDeadLettersList(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	letters, err := repository.NewDeadLetterRepository(db.Pool()).List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKIND\tENTITY\tORGANIZATION\tATTEMPTS\tERROR")
	for _, letter := range letters {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			letter.CreatedAt.UTC().Format(time.RFC3339),
			letter.Kind,
			letter.EntityID,
			letter.OrganizationID,
			letter.Attempts,
			letter.Error,
		)
	}
	return tw.Flush()
}

func runDeadLettersPurge(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cutoff := time.Now().Add(-c.Duration("older-than"))
	removed, err := repository.NewDeadLetterRepository(db.Pool()).DeleteBefore(c.Context, cutoff)
	if err != nil {
		return err
	}

	slog.Info("dead letters purged", "removed", removed, "cutoff", cutoff)
	return nil
}
