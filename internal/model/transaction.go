package model

import (
	"time"
)

// ============================================================================
// Transaction flags
// ============================================================================

// TransactionFlags is a bitset on a single ledger entry.
type TransactionFlags int

const (
	// FundsAvailable marks a settled, non-pending entry.
	FundsAvailable TransactionFlags = 1 << iota
	// Squashed marks a synthetic entry produced by journal compaction.
	Squashed
)

// Has reports whether every flag in mask is set.
func (f TransactionFlags) Has(mask TransactionFlags) bool {
	return f&mask == mask
}

// ============================================================================
// Ledger entry
// ============================================================================

// SquashMessage annotates the synthetic entry written by compaction.
const SquashMessage = "Transaction Squash"

// Transaction is one signed leg of the ledger journal.
//
// Journal entry design:
//  1. Entries are append-only. The only mutation after creation is setting
//     PairedID once both legs of a transfer exist.
//  2. A committed transfer always consists of exactly two entries of equal
//     magnitude and opposite sign, each referencing the other via PairedID.
//  3. Entries created outside a transfer (compaction) carry a null PairedID.
type Transaction struct {
	ID        int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64            `gorm:"not null;index" json:"account_id"`
	Account   *Account         `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	PairedID  *int64           `gorm:"default:null" json:"paired_id"`
	Amount    int64            `gorm:"not null" json:"amount"`
	Message   string           `gorm:"type:varchar(256)" json:"message"`
	Flags     TransactionFlags `gorm:"not null;default:0" json:"flags"`
	Timestamp time.Time        `gorm:"not null" json:"timestamp"`
}

func (Transaction) TableName() string {
	return "bank_account_transaction"
}

// IsSettled reports whether the entry's funds are available.
func (t *Transaction) IsSettled() bool {
	return t.Flags.Has(FundsAvailable)
}

// IsSquash reports whether the entry was produced by compaction.
func (t *Transaction) IsSquash() bool {
	return t.Flags.Has(Squashed)
}
