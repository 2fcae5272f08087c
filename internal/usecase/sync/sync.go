// Package sync reconciles the local book database and registry with the
// account's loans feed on the server.
package sync

import (
	"context"
	"fmt"
	"log"
	gosync "sync"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	dbmodels "shelflend/internal/database/models"
	"shelflend/internal/feeds"
	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
)

// Error codes surfaced in failed steps.
const (
	CodeFeedLoaderFailed = "feedLoaderFailed"
	CodeIOError          = "ioError"
)

// Outcome summarizes a completed sync.
type Outcome struct {
	Synced  int
	Skipped int
	Removed int
}

// Task fetches the loans feed and brings the local database and registry in
// line with it: entries are upserted, statuses derived from availability, and
// local records the server no longer lists are dropped.
type Task struct {
	account     *models.Account
	repo        database.BookRepository
	registry    *registry.Registry
	loader      feeds.Loader
	concurrency int
}

func NewTask(account *models.Account, repo database.BookRepository, reg *registry.Registry, loader feeds.Loader, concurrency int) *Task {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Task{
		account:     account,
		repo:        repo,
		registry:    reg,
		loader:      loader,
		concurrency: concurrency,
	}
}

// Call executes the sync and returns the recorded result.
func (t *Task) Call(ctx context.Context) taskrec.Result[Outcome] {
	rec := taskrec.NewRecorder[Outcome]()

	step := rec.BeginStep("Fetching the loans feed")
	feed, err := t.loader.FetchURIRefreshing(ctx, t.account, t.account.LoansURL, "GET")
	if err != nil {
		step.Fail(err.Error(), CodeFeedLoaderFailed, err)
		return rec.FinishFailure()
	}
	step.Succeed(fmt.Sprintf("Fetched %d entries.", len(feed.Entries)))

	step = rec.BeginStep("Updating the local book database")
	outcome := t.applyEntries(ctx, feed)
	step.Succeed(fmt.Sprintf("Synced %d books, skipped %d corrupt entries.", outcome.Synced, outcome.Skipped))

	step = rec.BeginStep("Removing departed loans")
	removed, err := t.removeDeparted(ctx, feed)
	if err != nil {
		step.Fail(err.Error(), CodeIOError, err)
		return rec.FinishFailure()
	}
	outcome.Removed = removed
	step.Succeed(fmt.Sprintf("Removed %d books no longer on loan.", removed))

	return rec.FinishSuccess(outcome)
}

// applyEntries upserts every intact entry, with bounded concurrency. Corrupt
// entries are skipped and counted, never fatal: a single mangled entry must
// not abort the whole sync.
func (t *Task) applyEntries(ctx context.Context, feed *feeds.Feed) Outcome {
	var (
		wg      gosync.WaitGroup
		mu      gosync.Mutex
		outcome Outcome
	)

	sem := make(chan struct{}, t.concurrency)
	for _, entry := range feed.Entries {
		if entry.Corrupt() {
			log.Printf("[Sync] skipping corrupt entry: %v", entry.Err)
			outcome.Skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(e feeds.Entry) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := t.applyEntry(ctx, e); err != nil {
				log.Printf("[Sync] failed to sync %s: %v", e.Book.ID, err)
				mu.Lock()
				outcome.Skipped++
				mu.Unlock()
				return
			}
			mu.Lock()
			outcome.Synced++
			mu.Unlock()
		}(entry)
	}
	wg.Wait()
	return outcome
}

func (t *Task) applyEntry(ctx context.Context, entry feeds.Entry) error {
	err := t.repo.Upsert(ctx, &dbmodels.BookRecord{
		AccountID:        t.account.ID,
		BookID:           string(entry.Book.ID),
		Title:            entry.Book.Title,
		Author:           entry.Book.Author,
		Updated:          entry.Book.Updated,
		AvailabilityKind: int(entry.Availability.Kind),
		RevokeHref:       entry.Availability.RevokeHref,
		AvailableUntil:   entry.Availability.Until,
	})
	if err != nil {
		return err
	}
	t.registry.Update(entry.Book, models.StatusFromAvailability(entry.Availability))
	return nil
}

func (t *Task) removeDeparted(ctx context.Context, feed *feeds.Feed) (int, error) {
	present := make(map[models.BookID]bool, len(feed.Entries))
	for _, e := range feed.Entries {
		if !e.Corrupt() {
			present[e.Book.ID] = true
		}
	}

	records, err := t.repo.List(ctx, t.account.ID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		id := models.BookID(rec.BookID)
		if present[id] {
			continue
		}
		if err := t.repo.Delete(ctx, t.account.ID, id); err != nil {
			return removed, err
		}
		t.registry.Remove(id)
		removed++
	}
	return removed, nil
}
