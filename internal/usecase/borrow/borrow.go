// Package borrow implements the borrow/reserve workflow: fetch the entry
// behind a borrow link, persist it, and track its status in the registry.
package borrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	dbmodels "shelflend/internal/database/models"
	"shelflend/internal/feeds"
	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
)

// Error codes surfaced in failed steps.
const (
	CodeCredentialsRequired = "loanCredentialsRequired"
	CodeFeedLoaderFailed    = "feedLoaderFailed"
	CodeFeedCorrupted       = "feedCorrupted"
	CodeFeedEmpty           = "feedEmpty"
	CodeIOError             = "ioError"
)

// Task borrows a single book through its borrow link. Borrowing is a PUT
// against the link; the server responds with a single-entry feed describing
// the resulting loan or hold.
type Task struct {
	account    *models.Account
	bookID     models.BookID
	borrowHref string
	repo       database.BookRepository
	registry   *registry.Registry
	loader     feeds.Loader
}

func NewTask(account *models.Account, bookID models.BookID, borrowHref string, repo database.BookRepository, reg *registry.Registry, loader feeds.Loader) *Task {
	return &Task{
		account:    account,
		bookID:     bookID,
		borrowHref: borrowHref,
		repo:       repo,
		registry:   reg,
		loader:     loader,
	}
}

// Call executes the workflow and returns the recorded result.
func (t *Task) Call(ctx context.Context) taskrec.Result[models.BookID] {
	t.registry.LockBook(t.bookID)
	defer t.registry.UnlockBook(t.bookID)

	rec := taskrec.NewRecorder[models.BookID]()

	step := rec.BeginStep(fmt.Sprintf("Borrowing %s", t.bookID))
	feed, err := t.loader.FetchURIRefreshing(ctx, t.account, t.borrowHref, http.MethodPut)
	if err != nil {
		code := CodeFeedLoaderFailed
		if errors.Is(err, feeds.ErrAuthentication) {
			code = CodeCredentialsRequired
		}
		step.Fail(err.Error(), code, err)
		return rec.FinishFailure()
	}

	entry, ok := t.entryFromFeed(feed)
	if !ok {
		if len(feed.Entries) > 0 && feed.Entries[0].Corrupt() {
			step.Fail(fmt.Sprintf("the borrow response is corrupted: %v", feed.Entries[0].Err), CodeFeedCorrupted, feed.Entries[0].Err)
		} else {
			step.Fail("the borrow response contains no usable entry", CodeFeedEmpty, nil)
		}
		return rec.FinishFailure()
	}
	step.Succeed("Server accepted the borrow request.")

	step = rec.BeginStep("Saving the loan to the local book database")
	err = t.repo.Upsert(ctx, &dbmodels.BookRecord{
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
		step.Fail(err.Error(), CodeIOError, err)
		return rec.FinishFailure()
	}
	step.Succeed("Saved.")

	t.registry.Update(entry.Book, models.StatusFromAvailability(entry.Availability))
	log.Printf("[Borrow] borrowed %s (%s)", entry.Book.ID, entry.Availability.Kind)
	return rec.FinishSuccess(entry.Book.ID)
}

// entryFromFeed picks the entry describing the borrowed book: the one
// matching the task's book ID, or the single intact entry in a one-entry
// response.
func (t *Task) entryFromFeed(feed *feeds.Feed) (feeds.Entry, bool) {
	if entry, ok := feed.EntryFor(t.bookID); ok {
		return entry, true
	}
	if len(feed.Entries) == 1 && !feed.Entries[0].Corrupt() {
		return feed.Entries[0], true
	}
	return feeds.Entry{}, false
}
