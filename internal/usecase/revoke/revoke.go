// Package revoke implements the loan/hold revocation workflow as a recorded,
// step-by-step task. Every failure is terminal for the invocation and is
// captured as a failed step; Call never lets an error or panic escape.
package revoke

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	dbmodels "shelflend/internal/database/models"
	"shelflend/internal/drm"
	"shelflend/internal/feeds"
	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
)

// Error codes surfaced in failed steps. UI layers branch on these.
const (
	CodeNotRevocable        = "notRevocable"
	CodeCredentialsRequired = "revokeCredentialsRequired"
	CodeDeviceNotActive     = "drmDeviceNotActive"
	CodeTimedOut            = "timedOut"
	CodeFeedLoaderFailed    = "feedLoaderFailed"
	CodeFeedCorrupted       = "feedCorrupted"
	CodeFeedUnusable        = "feedUnusable"
	CodeIOError             = "ioError"
)

// Task revokes a single book for an account: release DRM rights if any,
// confirm the revocation with the server if a revocation link exists, delete
// the local database entry, and drop the book from the registry.
//
// The task runs synchronously on the calling goroutine and performs blocking
// I/O; callers dispatch it to a background worker.
type Task struct {
	account   *models.Account
	bookID    models.BookID
	repo      database.BookRepository
	registry  *registry.Registry
	loader    feeds.Loader
	connector drm.Connector // nil when no DRM support is present

	drmTimeout time.Duration
}

// NewTask creates a revoke task. connector may be nil.
func NewTask(
	account *models.Account,
	bookID models.BookID,
	repo database.BookRepository,
	reg *registry.Registry,
	loader feeds.Loader,
	connector drm.Connector,
	drmTimeout time.Duration,
) *Task {
	return &Task{
		account:    account,
		bookID:     bookID,
		repo:       repo,
		registry:   reg,
		loader:     loader,
		connector:  connector,
		drmTimeout: drmTimeout,
	}
}

// Call executes the workflow and returns the recorded result. It always
// returns a Result; exceptions are data at this boundary.
func (t *Task) Call(ctx context.Context) (result taskrec.Result[models.BookID]) {
	// Serialize concurrent lifecycle tasks on the same book ID.
	t.registry.LockBook(t.bookID)
	defer t.registry.UnlockBook(t.bookID)

	rec := taskrec.NewRecorder[models.BookID]()

	defer func() {
		if r := recover(); r != nil {
			step := rec.BeginStep("Revocation crashed")
			step.Fail(fmt.Sprintf("unexpected panic: %v", r), taskrec.CodeUnexpectedException, fmt.Errorf("panic: %v", r))
			result = t.fail(rec)
		}
	}()

	log.Printf("[Revoke] starting revocation of %s", t.bookID)

	record, ok := t.loadBookEntry(ctx, rec)
	if !ok {
		return t.fail(rec)
	}

	avail, ok := t.determineRevocability(rec, record)
	if !ok {
		return t.fail(rec)
	}

	if !t.releaseDRM(ctx, rec, record) {
		return t.fail(rec)
	}

	if !t.confirmRemotely(ctx, rec, avail) {
		return t.fail(rec)
	}

	if !t.deleteLocalEntry(ctx, rec) {
		return t.fail(rec)
	}

	t.registry.Remove(t.bookID)
	log.Printf("[Revoke] revoked %s", t.bookID)
	return rec.FinishSuccess(t.bookID)
}

// fail freezes the recorder and, if the registry already tracked the book,
// marks it FailedRevoke carrying the full result. An untracked book stays
// untracked: re-revoking an already-revoked book must not create a phantom
// entry.
func (t *Task) fail(rec *taskrec.Recorder[models.BookID]) taskrec.Result[models.BookID] {
	result := rec.FinishFailure()
	if entry, ok := t.registry.Book(t.bookID); ok {
		t.registry.Update(entry.Book, models.BookStatus{
			Kind:       models.StatusFailedRevoke,
			LastRevoke: &result,
		})
	}
	log.Printf("[Revoke] revocation of %s failed: %s", t.bookID, result.LastErrorCode)
	return result
}

func (t *Task) loadBookEntry(ctx context.Context, rec *taskrec.Recorder[models.BookID]) (*dbmodels.BookRecord, bool) {
	step := rec.BeginStep(fmt.Sprintf("Loading book database entry for %s", t.bookID))
	record, err := t.repo.Get(ctx, t.account.ID, t.bookID)
	if err != nil {
		step.Fail(err.Error(), CodeIOError, err)
		return nil, false
	}
	step.Succeed("Loaded book database entry.")
	return record, true
}

func (t *Task) determineRevocability(rec *taskrec.Recorder[models.BookID], record *dbmodels.BookRecord) (models.Availability, bool) {
	step := rec.BeginStep("Determining whether the book is revocable")
	avail := record.Availability()
	if !avail.Revocable() {
		// Holdable and loanable titles were never lent to this patron.
		step.Fail(fmt.Sprintf("a %s book cannot be revoked", avail.Kind), CodeNotRevocable, nil)
		return avail, false
	}
	step.Succeed(fmt.Sprintf("Book is %s and may be revoked.", avail.Kind))
	return avail, true
}

func (t *Task) releaseDRM(ctx context.Context, rec *taskrec.Recorder[models.BookID], record *dbmodels.BookRecord) bool {
	step := rec.BeginStep("Releasing DRM rights")

	rights := record.Rights()
	switch {
	case rights == nil:
		step.Succeed("No DRM rights to release.")
		return true
	case !rights.Returnable:
		step.Succeed("DRM rights are not returnable; nothing to release.")
		return true
	case t.connector == nil:
		step.Succeed("No DRM support is available; skipping release.")
		return true
	}

	if !t.account.Authenticated() {
		step.Fail("the account is not logged in and the loan requires DRM release", CodeCredentialsRequired, nil)
		return false
	}
	if !t.connector.DeviceActive() {
		step.Fail("the device is not activated with the DRM backend", CodeDeviceNotActive, nil)
		return false
	}

	err := drm.ReturnLoan(ctx, t.connector, rights.LoanID, t.account.ID, t.drmTimeout)
	switch {
	case err == nil:
	case isReturnError(err):
		step.Fail(err.Error(), err.Error(), err)
		return false
	case errors.Is(err, drm.ErrNoResponse):
		step.Fail("the DRM backend never delivered a result", CodeTimedOut, err)
		return false
	default:
		step.Fail(err.Error(), taskrec.CodeUnexpectedException, err)
		return false
	}

	if err := t.repo.SetAdobeRights(ctx, t.account.ID, t.bookID, nil); err != nil {
		step.Fail(err.Error(), CodeIOError, err)
		return false
	}

	step.Succeed("DRM rights released.")
	return true
}

func (t *Task) confirmRemotely(ctx context.Context, rec *taskrec.Recorder[models.BookID], avail models.Availability) bool {
	step := rec.BeginStep("Confirming revocation with the server")

	if avail.RevokeHref == "" {
		// No revocation link means no network request at all.
		step.Succeed("No revocation link; server confirmation not required.")
		return true
	}

	feed, err := t.loader.FetchURIRefreshing(ctx, t.account, avail.RevokeHref, "GET")
	if err != nil {
		code := CodeFeedLoaderFailed
		if errors.Is(err, feeds.ErrAuthentication) {
			code = CodeCredentialsRequired
		}
		step.Fail(err.Error(), code, err)
		return false
	}

	if len(feed.Groups) > 0 {
		step.Fail("the revocation feed contains groups and cannot be interpreted", CodeFeedUnusable, nil)
		return false
	}
	for _, entry := range feed.Entries {
		if entry.Corrupt() {
			step.Fail(fmt.Sprintf("the revocation feed is corrupted: %v", entry.Err), CodeFeedCorrupted, entry.Err)
			return false
		}
	}

	// Persist the refreshed server-side view of the entry before deleting,
	// so a failed delete leaves an accurate record behind.
	if entry, ok := feed.EntryFor(t.bookID); ok {
		if err := t.writeRefreshedEntry(ctx, entry); err != nil {
			step.Fail(err.Error(), CodeIOError, err)
			return false
		}
	}

	step.Succeed("Server confirmed the revocation.")
	return true
}

func (t *Task) writeRefreshedEntry(ctx context.Context, entry feeds.Entry) error {
	return t.repo.Upsert(ctx, &dbmodels.BookRecord{
		AccountID:        t.account.ID,
		BookID:           string(entry.Book.ID),
		Title:            entry.Book.Title,
		Author:           entry.Book.Author,
		Updated:          entry.Book.Updated,
		AvailabilityKind: int(entry.Availability.Kind),
		RevokeHref:       entry.Availability.RevokeHref,
		AvailableUntil:   entry.Availability.Until,
	})
}

func (t *Task) deleteLocalEntry(ctx context.Context, rec *taskrec.Recorder[models.BookID]) bool {
	step := rec.BeginStep("Deleting the local book database entry")
	if err := t.repo.Delete(ctx, t.account.ID, t.bookID); err != nil {
		step.Fail(err.Error(), CodeIOError, err)
		return false
	}
	step.Succeed("Deleted the local book database entry.")
	return true
}

func isReturnError(err error) bool {
	var retErr *drm.ReturnError
	return errors.As(err, &retErr)
}
