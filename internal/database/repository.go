package database

import (
	"context"
	"errors"

	"shelflend/internal/core/domain/models"
	dbmodels "shelflend/internal/database/models"
)

var (
	ErrNotFound = errors.New("book record not found")
)

// BookRepository handles the account-local book database. Upsert doubles as
// the "write refreshed OPDS entry" operation: syncing and revocation both
// write the latest server-side view of an entry through it.
type BookRepository interface {
	Get(ctx context.Context, accountID string, bookID models.BookID) (*dbmodels.BookRecord, error)
	List(ctx context.Context, accountID string) ([]*dbmodels.BookRecord, error)
	Upsert(ctx context.Context, rec *dbmodels.BookRecord) error
	Delete(ctx context.Context, accountID string, bookID models.BookID) error

	// SetAdobeRights replaces the stored DRM rights information; a nil rights
	// value clears it after a successful loan return.
	SetAdobeRights(ctx context.Context, accountID string, bookID models.BookID, rights *models.AdobeRights) error
}
