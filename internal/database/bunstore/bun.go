package bunstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	dbmodels "shelflend/internal/database/models"
)

// BunStore implements database.BookRepository on bun.
type BunStore struct {
	db *bun.DB
}

var _ database.BookRepository = (*BunStore)(nil)

func NewBunStore(db *sql.DB, dialect schema.Dialect) (*BunStore, error) {
	bunDB := bun.NewDB(db, dialect)

	store := &BunStore{db: bunDB}

	// Create tables if they don't exist
	ctx := context.Background()
	if _, err := bunDB.NewCreateTable().Model((*dbmodels.BookRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create book_records table: %w", err)
	}

	return store, nil
}

func (s *BunStore) Get(ctx context.Context, accountID string, bookID models.BookID) (*dbmodels.BookRecord, error) {
	rec := new(dbmodels.BookRecord)
	err := s.db.NewSelect().Model(rec).
		Where("account_id = ? AND book_id = ?", accountID, string(bookID)).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *BunStore) List(ctx context.Context, accountID string) ([]*dbmodels.BookRecord, error) {
	var recs []*dbmodels.BookRecord
	err := s.db.NewSelect().Model(&recs).
		Where("account_id = ?", accountID).
		Order("book_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *BunStore) Upsert(ctx context.Context, rec *dbmodels.BookRecord) error {
	_, err := s.db.NewInsert().Model(rec).
		On("CONFLICT (account_id, book_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("author = EXCLUDED.author").
		Set("updated = EXCLUDED.updated").
		Set("availability_kind = EXCLUDED.availability_kind").
		Set("revoke_href = EXCLUDED.revoke_href").
		Set("available_until = EXCLUDED.available_until").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	return err
}

func (s *BunStore) Delete(ctx context.Context, accountID string, bookID models.BookID) error {
	res, err := s.db.NewDelete().Model((*dbmodels.BookRecord)(nil)).
		Where("account_id = ? AND book_id = ?", accountID, string(bookID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *BunStore) SetAdobeRights(ctx context.Context, accountID string, bookID models.BookID, rights *models.AdobeRights) error {
	q := s.db.NewUpdate().Model((*dbmodels.BookRecord)(nil)).
		Where("account_id = ? AND book_id = ?", accountID, string(bookID)).
		Set("updated_at = current_timestamp")

	if rights == nil {
		q = q.Set("adobe_rights_blob = NULL").
			Set("adobe_loan_id = NULL").
			Set("adobe_returnable = ?", false)
	} else {
		q = q.Set("adobe_rights_blob = ?", rights.Blob).
			Set("adobe_loan_id = ?", rights.LoanID).
			Set("adobe_returnable = ?", rights.Returnable)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}
