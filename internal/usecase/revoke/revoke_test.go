package revoke

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database/memstore"
	dbmodels "shelflend/internal/database/models"
	"shelflend/internal/drm"
	"shelflend/internal/feeds"
	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
)

const (
	accountID = "acct-1"
	bookID    = models.BookID("urn:book:castle")
)

type mockLoader struct {
	mu           sync.Mutex
	feed         *feeds.Feed
	err          error
	RequestCount int
}

func (l *mockLoader) FetchURIRefreshing(ctx context.Context, account *models.Account, uri string, method string) (*feeds.Feed, error) {
	l.mu.Lock()
	l.RequestCount++
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.feed != nil {
		return l.feed, nil
	}
	return &feeds.Feed{}, nil
}

type fakeConnector struct {
	mode   string // "success", "failure", "silent", "panic"
	code   string
	active bool
}

func (f *fakeConnector) DeviceActive() bool { return f.active }

func (f *fakeConnector) LoanReturn(listener drm.ReturnListener, loanID, userID string) {
	switch f.mode {
	case "success":
		listener.OnLoanReturnSuccess()
	case "failure":
		listener.OnLoanReturnFailure(f.code)
	case "panic":
		panic("adept exploded")
	case "silent":
	}
}

type fixture struct {
	account  *models.Account
	repo     *memstore.MemoryRepository
	registry *registry.Registry
	loader   *mockLoader
}

func newFixture(t *testing.T, avail models.AvailabilityKind, revokeHref string, rights *models.AdobeRights) *fixture {
	t.Helper()
	f := &fixture{
		account: &models.Account{
			ID:          accountID,
			Credentials: &models.Credentials{Username: "card", Password: "pin"},
		},
		repo:     memstore.NewMemoryRepository(),
		registry: registry.New(),
		loader:   &mockLoader{},
	}

	rec := &dbmodels.BookRecord{
		AccountID:        accountID,
		BookID:           string(bookID),
		Title:            "The Castle",
		AvailabilityKind: int(avail),
		RevokeHref:       revokeHref,
	}
	rec.SetRights(rights)
	require.NoError(t, f.repo.Upsert(context.Background(), rec))
	if rights != nil {
		require.NoError(t, f.repo.SetAdobeRights(context.Background(), accountID, bookID, rights))
		f.repo.SetRightsCalls = 0
	}

	f.registry.Update(models.Book{ID: bookID, Title: "The Castle"}, models.BookStatus{Kind: models.StatusLoaned})
	return f
}

func (f *fixture) task(connector drm.Connector) *Task {
	return NewTask(f.account, bookID, f.repo, f.registry, f.loader, connector, 200*time.Millisecond)
}

func TestRevoke_HoldableAndLoanableAreNotRevocable(t *testing.T) {
	for _, kind := range []models.AvailabilityKind{models.AvailabilityHoldable, models.AvailabilityLoanable} {
		t.Run(kind.String(), func(t *testing.T) {
			f := newFixture(t, kind, "https://library.example/revoke", nil)

			result := f.task(nil).Call(context.Background())

			require.False(t, result.Succeeded())
			assert.Equal(t, CodeNotRevocable, result.LastErrorCode)
			assert.Equal(t, 0, f.repo.DeleteCalls)

			entry, ok := f.registry.Book(bookID)
			require.True(t, ok)
			assert.Equal(t, models.StatusFailedRevoke, entry.Status.Kind)
			require.NotNil(t, entry.Status.LastRevoke)
			assert.Equal(t, CodeNotRevocable, entry.Status.LastRevoke.LastErrorCode)
		})
	}
}

func TestRevoke_NoRevokeLinkMakesNoRequest(t *testing.T) {
	for _, kind := range []models.AvailabilityKind{
		models.AvailabilityOpenAccess,
		models.AvailabilityHeld,
		models.AvailabilityHeldReady,
		models.AvailabilityLoaned,
		models.AvailabilityRevoked,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			f := newFixture(t, kind, "", nil)

			result := f.task(nil).Call(context.Background())

			require.True(t, result.Succeeded())
			assert.Equal(t, 0, f.loader.RequestCount)
			assert.Equal(t, 1, f.repo.DeleteCalls)

			_, ok := f.registry.Book(bookID)
			assert.False(t, ok)
		})
	}
}

func TestRevoke_RemoteConfirmationSucceeds(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "https://library.example/revoke", nil)
	f.loader.feed = &feeds.Feed{
		Entries: []feeds.Entry{{
			Book:         models.Book{ID: bookID, Title: "The Castle"},
			Availability: models.Availability{Kind: models.AvailabilityRevoked},
		}},
	}

	result := f.task(nil).Call(context.Background())

	require.True(t, result.Succeeded())
	assert.Equal(t, 1, f.loader.RequestCount)
	assert.Equal(t, 1, f.repo.DeleteCalls)

	_, ok := f.registry.Book(bookID)
	assert.False(t, ok)
}

func TestRevoke_DeleteFailure(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "", nil)
	f.repo.ErrDelete = errors.New("disk on fire")

	result := f.task(nil).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeIOError, result.LastErrorCode)

	failed, ok := result.LastStep().Resolution.(taskrec.Failed)
	require.True(t, ok)
	assert.Equal(t, "disk on fire", failed.Message)

	entry, ok := f.registry.Book(bookID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailedRevoke, entry.Status.Kind)
}

func TestRevoke_DRMSuccessClearsRights(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	result := f.task(&fakeConnector{mode: "success", active: true}).Call(context.Background())

	require.True(t, result.Succeeded())
	assert.Equal(t, 0, f.loader.RequestCount)
	assert.Equal(t, 1, f.repo.DeleteCalls)
	assert.Equal(t, 1, f.repo.SetRightsCalls)
}

func TestRevoke_DRMFailureCode(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	result := f.task(&fakeConnector{mode: "failure", code: "E_DEFECTIVE", active: true}).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, "Adobe ACS: E_DEFECTIVE", result.LastErrorCode)
	assert.Equal(t, 0, f.repo.DeleteCalls)
	assert.Equal(t, 0, f.repo.SetRightsCalls)
}

func TestRevoke_DRMNoCallback(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	result := f.task(&fakeConnector{mode: "silent", active: true}).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeTimedOut, result.LastErrorCode)
	assert.Equal(t, 0, f.repo.DeleteCalls)
}

func TestRevoke_DRMPanicBecomesFailedStep(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	result := f.task(&fakeConnector{mode: "panic", active: true}).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, taskrec.CodeUnexpectedException, result.LastErrorCode)
	require.NotNil(t, result.Err)
	assert.Contains(t, result.Err.Error(), "adept exploded")
}

func TestRevoke_CredentialsRequired(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)
	f.account.Credentials = nil

	result := f.task(&fakeConnector{mode: "success", active: true}).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeCredentialsRequired, result.LastErrorCode)
	assert.Equal(t, 0, f.repo.DeleteCalls)
}

func TestRevoke_DeviceNotActive(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: true}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	result := f.task(&fakeConnector{mode: "success", active: false}).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeDeviceNotActive, result.LastErrorCode)
}

func TestRevoke_NotReturnableRightsSkipDRM(t *testing.T) {
	rights := &models.AdobeRights{Blob: []byte("token"), LoanID: "loan-1", Returnable: false}
	f := newFixture(t, models.AvailabilityLoaned, "", rights)

	// A connector that would fail is never consulted.
	result := f.task(&fakeConnector{mode: "failure", code: "E_IRRELEVANT", active: true}).Call(context.Background())

	require.True(t, result.Succeeded())
	assert.Equal(t, 0, f.repo.SetRightsCalls)
}

func TestRevoke_GroupedFeedFails(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "https://library.example/revoke", nil)
	f.loader.feed = &feeds.Feed{Groups: []string{"Staff Picks"}}

	result := f.task(nil).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeFeedUnusable, result.LastErrorCode)
	assert.Equal(t, 0, f.repo.DeleteCalls)
}

func TestRevoke_CorruptFeedFails(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "https://library.example/revoke", nil)
	f.loader.feed = &feeds.Feed{Entries: []feeds.Entry{{Err: errors.New("mangled entry")}}}

	result := f.task(nil).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeFeedCorrupted, result.LastErrorCode)
}

func TestRevoke_AuthFailureDuringConfirmation(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "https://library.example/revoke", nil)
	f.loader.err = feeds.ErrAuthentication

	result := f.task(nil).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeCredentialsRequired, result.LastErrorCode)
}

func TestRevoke_AlreadyRevokedBookLeavesRegistryUntouched(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "", nil)
	// Fully revoked: no database record, no registry entry.
	require.NoError(t, f.repo.Delete(context.Background(), accountID, bookID))
	f.repo.DeleteCalls = 0
	f.registry.Remove(bookID)

	result := f.task(nil).Call(context.Background())

	require.False(t, result.Succeeded())
	assert.Equal(t, CodeIOError, result.LastErrorCode)
	_, ok := f.registry.Book(bookID)
	assert.False(t, ok, "a failed re-revoke must not resurrect a registry entry")
}

func TestRevoke_ConcurrentCallsOnSameBookSerialize(t *testing.T) {
	f := newFixture(t, models.AvailabilityLoaned, "", nil)

	var wg sync.WaitGroup
	results := make([]taskrec.Result[models.BookID], 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.task(nil).Call(context.Background())
		}(i)
	}
	wg.Wait()

	// Exactly one of the two wins; the loser sees the entry already gone.
	var succeeded int
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	// The loser fails on lookup before reaching delete.
	assert.Equal(t, 1, f.repo.DeleteCalls)

	_, ok := f.registry.Book(bookID)
	assert.False(t, ok)
}
