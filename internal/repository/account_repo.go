package repository

import (
	"context"
	"errors"

	"coinledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicateName   = errors.New("account name already exists in this world")
	ErrEmptyName       = errors.New("non-system accounts require a name")
)

// AccountRepository owns the set of ledger accounts.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account and assigns its identity.
//
// Name uniqueness is enforced per (name, world_id) among non-system accounts;
// system accounts may share names and may have an empty name. The check and
// the insert run in one transaction so a concurrent Create cannot slip a
// duplicate in between.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	if account.Name == "" && !account.IsSystemAccount() {
		return ErrEmptyName
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !account.IsSystemAccount() {
			var count int64
			err := tx.Model(&model.Account{}).
				Where("name = ? AND world_id = ? AND flags & ? = 0",
					account.Name, account.WorldID, int(model.AccountSystem)).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateName
			}
		}
		return tx.Create(account).Error
	})
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByName(ctx context.Context, name string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// List returns a snapshot of all accounts. Ordering is the caller's concern.
func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Find(&accounts).Error
	return accounts, err
}

// Exists reports whether the account row is currently present. Used by the
// transfer engine to guard against stale references after a purge.
func (r *AccountRepository) Exists(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Count(&count).Error
	return count == 1, err
}

// Delete removes the account and cascades deletion of its journal entries.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&model.Transaction{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Account{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
}

// GetOrCreate resolves a player account by name, creating a fresh enabled
// account on first reference.
func (r *AccountRepository) GetOrCreate(ctx context.Context, name string, worldID int64) (*model.Account, bool, error) {
	account, err := r.GetByName(ctx, name)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	newAccount := &model.Account{
		Name:    name,
		WorldID: worldID,
		Flags:   model.AccountEnabled,
	}

	err = r.Create(ctx, newAccount)
	if errors.Is(err, ErrDuplicateName) {
		// Lost the race to a concurrent first reference; use the winner's row.
		account, err = r.GetByName(ctx, name)
		return account, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return newAccount, true, nil
}

// UpdateBalance stores a freshly computed cached balance. RowsAffected is not
// checked: MySQL reports zero affected rows when the stored value is already
// correct, and resyncs are frequently no-ops.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id int64, balance int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("balance", balance).Error
}
