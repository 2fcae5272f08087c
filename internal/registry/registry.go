// Package registry holds the process-wide mapping from book ID to current
// lifecycle status. Tasks are the only writers; UI-facing layers observe it
// through the event stream.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"shelflend/internal/core/domain/models"
)

// ErrNoSuchBook is returned by BookOrError for untracked book IDs.
var ErrNoSuchBook = errors.New("no such book in registry")

// Entry pairs a book with its current status.
type Entry struct {
	Book   models.Book
	Status models.BookStatus
}

// EventType distinguishes status changes from removals.
type EventType int

const (
	EventChanged EventType = iota
	EventRemoved
)

// Event is emitted on every registry mutation. Events for a single book ID
// are delivered in the order the mutations were made.
type Event struct {
	Type   EventType
	BookID models.BookID
	Book   models.Book
	Status models.BookStatus
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events.
const subscriberBuffer = 64

// Registry is safe for concurrent use. A single mutex serializes mutations,
// which is what guarantees per-book event ordering.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.BookID]Entry
	subs    map[string]chan Event

	locksMu sync.Mutex
	locks   map[models.BookID]*sync.Mutex
}

func New() *Registry {
	return &Registry{
		entries: make(map[models.BookID]Entry),
		subs:    make(map[string]chan Event),
		locks:   make(map[models.BookID]*sync.Mutex),
	}
}

// Book returns the entry for id, if one is tracked.
func (r *Registry) Book(id models.BookID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// BookOrError returns the entry for id or ErrNoSuchBook.
func (r *Registry) BookOrError(id models.BookID) (Entry, error) {
	e, ok := r.Book(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoSuchBook, id)
	}
	return e, nil
}

// Books returns a snapshot of all tracked entries.
func (r *Registry) Books() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Update sets the status for a book, creating the entry if needed, and
// notifies subscribers.
func (r *Registry) Update(book models.Book, status models.BookStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[book.ID] = Entry{Book: book, Status: status}
	r.broadcastLocked(Event{Type: EventChanged, BookID: book.ID, Book: book, Status: status})
}

// Remove drops a book from the registry entirely; its status becomes
// "absent", which is the terminal state of a successful revoke.
func (r *Registry) Remove(id models.BookID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	r.broadcastLocked(Event{Type: EventRemoved, BookID: id})
}

// Subscribe registers a new event subscriber. The returned cancel function
// must be called to release the subscription; the channel is closed on
// cancel.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	key := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	r.mu.Lock()
	r.subs[key] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[key]; ok {
			delete(r.subs, key)
			close(sub)
		}
	}
	return ch, cancel
}

func (r *Registry) broadcastLocked(event Event) {
	for key, ch := range r.subs {
		select {
		case ch <- event:
		default:
			log.Printf("[Registry] dropping event for slow subscriber %s (book %s)", key, event.BookID)
		}
	}
}

// LockBook acquires the per-book mutex that serializes concurrent lifecycle
// tasks on a single book ID. UnlockBook releases it.
func (r *Registry) LockBook(id models.BookID) {
	r.bookLock(id).Lock()
}

func (r *Registry) UnlockBook(id models.BookID) {
	r.bookLock(id).Unlock()
}

func (r *Registry) bookLock(id models.BookID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}
