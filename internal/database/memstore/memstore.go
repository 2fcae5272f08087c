// Package memstore provides an in-memory BookRepository used by tests and by
// the demo CLI when no database path is configured.
package memstore

import (
	"context"
	"sync"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	dbmodels "shelflend/internal/database/models"
)

// MemoryRepository is a map-backed BookRepository. The Err* hooks inject
// failures for exercising task error paths.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*dbmodels.BookRecord
	nextID  int64

	ErrGet       error
	ErrUpsert    error
	ErrDelete    error
	ErrSetRights error

	DeleteCalls    int
	SetRightsCalls int
}

var _ database.BookRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*dbmodels.BookRecord)}
}

func key(accountID string, bookID models.BookID) string {
	return accountID + "\x00" + string(bookID)
}

func (m *MemoryRepository) Get(ctx context.Context, accountID string, bookID models.BookID) (*dbmodels.BookRecord, error) {
	if m.ErrGet != nil {
		return nil, m.ErrGet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(accountID, bookID)]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRepository) List(ctx context.Context, accountID string) ([]*dbmodels.BookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dbmodels.BookRecord
	for _, rec := range m.records {
		if rec.AccountID == accountID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, rec *dbmodels.BookRecord) error {
	if m.ErrUpsert != nil {
		return m.ErrUpsert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(rec.AccountID, models.BookID(rec.BookID))
	if existing, ok := m.records[k]; ok {
		rec.ID = existing.ID
		// Upsert refreshes the entry columns but never touches DRM rights.
		rec.AdobeRightsBlob = existing.AdobeRightsBlob
		rec.AdobeLoanID = existing.AdobeLoanID
		rec.AdobeReturnable = existing.AdobeReturnable
	} else {
		m.nextID++
		rec.ID = m.nextID
	}
	cp := *rec
	m.records[k] = &cp
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, accountID string, bookID models.BookID) error {
	m.mu.Lock()
	m.DeleteCalls++
	m.mu.Unlock()
	if m.ErrDelete != nil {
		return m.ErrDelete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(accountID, bookID)
	if _, ok := m.records[k]; !ok {
		return database.ErrNotFound
	}
	delete(m.records, k)
	return nil
}

func (m *MemoryRepository) SetAdobeRights(ctx context.Context, accountID string, bookID models.BookID, rights *models.AdobeRights) error {
	m.mu.Lock()
	m.SetRightsCalls++
	m.mu.Unlock()
	if m.ErrSetRights != nil {
		return m.ErrSetRights
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(accountID, bookID)]
	if !ok {
		return database.ErrNotFound
	}
	rec.SetRights(rights)
	return nil
}
