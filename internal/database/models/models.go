package models

import (
	"time"

	"github.com/uptrace/bun"

	domain "shelflend/internal/core/domain/models"
)

// BookRecord is the persisted form of a book the account currently tracks:
// one row per (account, book) pair, carrying the last availability state seen
// from the server and any DRM rights attached to the preferred format.
type BookRecord struct {
	bun.BaseModel `bun:"table:book_records,alias:br"`

	ID        int64  `bun:",pk,autoincrement"`
	AccountID string `bun:",notnull,unique:account_book"`
	BookID    string `bun:",notnull,unique:account_book"`

	Title   string    `bun:",notnull"`
	Author  string    `bun:",nullzero"`
	Updated time.Time `bun:",nullzero"`

	AvailabilityKind int       `bun:",notnull"`
	RevokeHref       string    `bun:",nullzero"`
	AvailableUntil   time.Time `bun:",nullzero"`

	AdobeRightsBlob []byte `bun:",nullzero"`
	AdobeLoanID     string `bun:",nullzero"`
	AdobeReturnable bool   `bun:",notnull,default:false"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Book converts the record to its domain form.
func (r *BookRecord) Book() domain.Book {
	return domain.Book{
		ID:      domain.BookID(r.BookID),
		Title:   r.Title,
		Author:  r.Author,
		Updated: r.Updated,
	}
}

// Availability converts the persisted availability columns to the domain form.
func (r *BookRecord) Availability() domain.Availability {
	return domain.Availability{
		Kind:       domain.AvailabilityKind(r.AvailabilityKind),
		RevokeHref: r.RevokeHref,
		Until:      r.AvailableUntil,
	}
}

// Rights returns the DRM rights information for the record's preferred
// format, or nil when the format carries none.
func (r *BookRecord) Rights() *domain.AdobeRights {
	if len(r.AdobeRightsBlob) == 0 && r.AdobeLoanID == "" {
		return nil
	}
	return &domain.AdobeRights{
		Blob:       r.AdobeRightsBlob,
		LoanID:     r.AdobeLoanID,
		Returnable: r.AdobeReturnable,
	}
}

// SetRights writes rights onto the record's DRM columns; nil clears them.
func (r *BookRecord) SetRights(rights *domain.AdobeRights) {
	if rights == nil {
		r.AdobeRightsBlob = nil
		r.AdobeLoanID = ""
		r.AdobeReturnable = false
		return
	}
	r.AdobeRightsBlob = rights.Blob
	r.AdobeLoanID = rights.LoanID
	r.AdobeReturnable = rights.Returnable
}
