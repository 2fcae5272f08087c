// Package feeds loads and models OPDS feeds from the library server.
package feeds

import (
	"errors"
	"fmt"

	"shelflend/internal/core/domain/models"
)

// ErrAuthentication is returned when the server rejects the account's
// credentials (or their absence).
var ErrAuthentication = errors.New("feed authentication failed")

// StatusError is returned for non-2xx responses that are not auth failures.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status: %d", e.Code)
}

// Entry is a single feed entry. A corrupt entry (one the parser could not
// make sense of) carries Err and nothing else reliable.
type Entry struct {
	Book         models.Book
	Availability models.Availability
	Err          error
}

// Corrupt reports whether the entry failed to parse.
func (e Entry) Corrupt() bool {
	return e.Err != nil
}

// Feed is the parsed form of an OPDS acquisition feed. Groups lists the
// titles of any "collection" groups found; a revocation confirmation feed
// containing groups is unusable.
type Feed struct {
	Title   string
	Entries []Entry
	Groups  []string
}

// EntryFor returns the entry matching id, if present and intact.
func (f *Feed) EntryFor(id models.BookID) (Entry, bool) {
	for _, e := range f.Entries {
		if !e.Corrupt() && e.Book.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
