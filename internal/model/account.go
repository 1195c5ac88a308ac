package model

import (
	"time"
)

// ============================================================================
// Account flags
// ============================================================================

// AccountFlags is a bitset describing account behaviour. Flags combine with
// bitwise OR and never replace each other.
type AccountFlags int

const (
	// AccountEnabled marks an account as usable for transfers.
	AccountEnabled AccountFlags = 1 << iota
	// AccountSystem marks a system account: it may run a negative balance and
	// is excluded from leaderboards and purge passes.
	AccountSystem
	// AccountLockedToWorld restricts the account to the world it was created in.
	AccountLockedToWorld
	// AccountPlugin marks a programmatic, non-player account. Deficit-exempt
	// like a system account.
	AccountPlugin
)

// Has reports whether every flag in mask is set.
func (f AccountFlags) Has(mask AccountFlags) bool {
	return f&mask == mask
}

// ============================================================================
// Account entity
// ============================================================================

// Account is a named ledger account with a cached balance.
//
// Balance must always equal the sum of the account's transaction amounts. It is
// recomputed by resync after every transfer and re-derived by aggregation at
// load time, never trusted blindly across a restart.
type Account struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string       `gorm:"type:varchar(64);not null;index:idx_account_name_world" json:"name"`
	WorldID     int64        `gorm:"not null;index:idx_account_name_world" json:"world_id"`
	Flags       AccountFlags `gorm:"not null;default:0" json:"flags"`
	Balance     int64        `gorm:"not null;default:0" json:"balance"`
	Description string       `gorm:"type:varchar(512)" json:"description"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "bank_account"
}

func (a *Account) IsEnabled() bool       { return a.Flags.Has(AccountEnabled) }
func (a *Account) IsSystemAccount() bool { return a.Flags.Has(AccountSystem) }
func (a *Account) IsLockedToWorld() bool { return a.Flags.Has(AccountLockedToWorld) }
func (a *Account) IsPluginAccount() bool { return a.Flags.Has(AccountPlugin) }

// CanRunDeficit reports whether the account may fund transfers past zero
// without an explicit deficit override.
func (a *Account) CanRunDeficit() bool {
	return a.IsSystemAccount() || a.IsPluginAccount()
}
