package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// ErrDraftCountMismatch aborts promote/discard when the affected rows differ from the drafts
// the caller validated.
var ErrDraftCountMismatch = errors.New("draft row count changed during transition")

type timetableEntryRepository interface {
	List(ctx context.Context, filter models.EntryFilter) ([]models.TimetableEntry, error)
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
	CountDrafts(ctx context.Context, exec sqlx.ExtContext) (int, error)
	SemestersWithEntries(ctx context.Context, semesterIDs []string) ([]string, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error
	BulkInsert(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error
	Update(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	PromoteDrafts(ctx context.Context, exec sqlx.ExtContext) (int64, error)
	DeleteDrafts(ctx context.Context, exec sqlx.ExtContext) (int64, error)
}

type timetableBatchRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, batch *models.TimetableBatch) error
	FindOpen(ctx context.Context) (*models.TimetableBatch, error)
	CloseOpen(ctx context.Context, exec sqlx.ExtContext, status models.BatchStatus) (int64, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DraftStore holds pending entries tagged with their generation batch and moves them to the
// committed set, or discards them, as one transaction.
type DraftStore struct {
	entries timetableEntryRepository
	batches timetableBatchRepository
	tx      txProvider
}

// NewDraftStore wires the draft store.
func NewDraftStore(entries timetableEntryRepository, batches timetableBatchRepository, tx txProvider) *DraftStore {
	return &DraftStore{entries: entries, batches: batches, tx: tx}
}

// Drafts lists every pending entry.
func (s *DraftStore) Drafts(ctx context.Context) ([]models.TimetableEntry, error) {
	return s.entries.List(ctx, models.EntryFilter{Status: models.EntryStatusDraft})
}

// Count reports the number of pending entries.
func (s *DraftStore) Count(ctx context.Context) (int, error) {
	return s.entries.CountDrafts(ctx, nil)
}

// OpenBatch returns the batch awaiting confirmation, or nil.
func (s *DraftStore) OpenBatch(ctx context.Context) (*models.TimetableBatch, error) {
	return s.batches.FindOpen(ctx)
}

// Save records a new open batch with its drafts. Any stale open batch is cancelled first.
func (s *DraftStore) Save(ctx context.Context, batch *models.TimetableBatch, drafts []models.TimetableEntry) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.batches.CloseOpen(ctx, tx, models.BatchStatusCancelled); err != nil {
			return err
		}
		if err := s.batches.Create(ctx, tx, batch); err != nil {
			return err
		}
		return s.entries.BulkInsert(ctx, tx, drafts)
	})
}

// PromoteAll commits every draft and confirms the open batch. expected is the number of drafts
// the caller validated; any other row count rolls the transaction back.
func (s *DraftStore) PromoteAll(ctx context.Context, expected int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.entries.PromoteDrafts(ctx, tx)
		if err != nil {
			return err
		}
		if affected != int64(expected) {
			return fmt.Errorf("promote %d drafts, %d rows changed: %w", expected, affected, ErrDraftCountMismatch)
		}
		_, err = s.batches.CloseOpen(ctx, tx, models.BatchStatusConfirmed)
		return err
	})
}

// DiscardAll deletes every draft and cancels the open batch.
func (s *DraftStore) DiscardAll(ctx context.Context, expected int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.entries.DeleteDrafts(ctx, tx)
		if err != nil {
			return err
		}
		if affected != int64(expected) {
			return fmt.Errorf("discard %d drafts, %d rows deleted: %w", expected, affected, ErrDraftCountMismatch)
		}
		_, err = s.batches.CloseOpen(ctx, tx, models.BatchStatusCancelled)
		return err
	})
}

// CloseOpenBatch finalises an open batch that no longer owns drafts.
func (s *DraftStore) CloseOpenBatch(ctx context.Context, status models.BatchStatus) error {
	_, err := s.batches.CloseOpen(ctx, nil, status)
	return err
}

func (s *DraftStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return fmt.Errorf("transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
