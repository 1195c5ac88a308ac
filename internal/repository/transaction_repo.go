package repository

import (
	"context"
	"errors"
	"time"

	"coinledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUnknownAccount      = errors.New("journal entry references an unknown account")
	ErrTransactionNotFound = errors.New("journal entry not found")
	ErrAlreadyBound        = errors.New("journal entry is already bound to a different entry")
)

// TransactionRepository is the append-only journal of ledger entries.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append inserts one signed journal entry. The only validation is referential:
// the owning account must exist.
func (r *TransactionRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}

	var count int64
	err := tx.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", entry.AccountID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUnknownAccount
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// Bind sets each entry's paired reference to the other, marking them as the
// two legs of one transfer. Idempotent when the pair is already mutually
// bound; fails if either entry is bound elsewhere.
func (r *TransactionRepository) Bind(ctx context.Context, tx *gorm.DB, idA, idB int64) error {
	if tx == nil {
		tx = r.db
	}

	var a, b model.Transaction
	if err := tx.WithContext(ctx).First(&a, "id = ?", idA).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if err := tx.WithContext(ctx).First(&b, "id = ?", idB).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}

	if a.PairedID != nil && *a.PairedID == idB && b.PairedID != nil && *b.PairedID == idA {
		return nil
	}
	if (a.PairedID != nil && *a.PairedID != idB) || (b.PairedID != nil && *b.PairedID != idA) {
		return ErrAlreadyBound
	}

	if err := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", idA).
		Update("paired_id", idB).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", idB).
		Update("paired_id", idA).Error
}

// SumForAccount is the authoritative balance computation used by resync.
func (r *TransactionRepository) SumForAccount(ctx context.Context, tx *gorm.DB, accountID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var sum int64
	err := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ListForAccount returns the account's entries in creation order.
func (r *TransactionRepository) ListForAccount(ctx context.Context, accountID int64) ([]*model.Transaction, error) {
	var entries []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// CountForAccount returns the number of entries owned by the account.
func (r *TransactionRepository) CountForAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

// ReplaceForAccount atomically swaps every entry owned by the account for the
// given replacements. Used only by compaction; the replacement set must carry
// the same net sum as the deleted entries.
func (r *TransactionRepository) ReplaceForAccount(ctx context.Context, accountID int64, entries []*model.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&model.Transaction{}).Error; err != nil {
			return err
		}
		for _, entry := range entries {
			entry.AccountID = accountID
			if entry.Timestamp.IsZero() {
				entry.Timestamp = time.Now().UTC()
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
