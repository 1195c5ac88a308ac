package ledger

import (
	"context"
	"time"

	"coinledger/internal/model"
	"coinledger/internal/money"
)

// ============================================================================
// Transfer options
// ============================================================================

// TransferOptions is a bitset of pass-through signals carried to completion
// observers. AllowDeficitOnNormalAccount additionally participates in
// pre-flight validation.
type TransferOptions int

const (
	AnnounceToSender TransferOptions = 1 << iota
	AnnounceToReceiver
	PlayerToPlayer
	AllowDeficitOnNormalAccount
)

// Has reports whether every option in mask is set.
func (o TransferOptions) Has(mask TransferOptions) bool {
	return o&mask == mask
}

// ============================================================================
// Observer contracts
// ============================================================================

// PendingTransfer is handed to pending-transfer observers before any write.
// Observers may adjust Amount, Message or Options, or veto the transfer
// entirely; the engine commits the adjusted values.
type PendingTransfer struct {
	From    *model.Account
	To      *model.Account
	Amount  money.Money
	Options TransferOptions
	Message string

	cancelled bool
	reason    string
}

// Cancel vetoes the transfer. The engine reports ErrTransferCancelled and
// performs no writes.
func (p *PendingTransfer) Cancel(reason string) {
	p.cancelled = true
	p.reason = reason
}

// Cancelled reports whether an observer vetoed the transfer.
func (p *PendingTransfer) Cancelled() (bool, string) {
	return p.cancelled, p.reason
}

// TransferReceipt describes one committed transfer.
type TransferReceipt struct {
	Reference           string          `json:"reference"`
	FromAccountID       int64           `json:"from_account_id"`
	FromAccountName     string          `json:"from_account_name"`
	ToAccountID         int64           `json:"to_account_id"`
	ToAccountName       string          `json:"to_account_name"`
	Amount              money.Money     `json:"amount"`
	AmountDisplay       string          `json:"amount_display"`
	Options             TransferOptions `json:"options"`
	Message             string          `json:"message"`
	SourceTransactionID int64           `json:"source_transaction_id"`
	DestTransactionID   int64           `json:"dest_transaction_id"`
	FromBalance         money.Money     `json:"from_balance"`
	ToBalance           money.Money     `json:"to_balance"`
	CommittedAt         time.Time       `json:"committed_at"`
}

// PendingTransferHandler runs synchronously before a transfer commits.
type PendingTransferHandler func(*PendingTransfer)

// TransferCompletedHandler runs after a transfer has committed and both
// balances have been resynced.
type TransferCompletedHandler func(*TransferReceipt)

// LoadProgressHandler receives journal load / purge progress updates.
type LoadProgressHandler func(label string, percent int)

// IdentityProvider supplies the set of externally known player identities.
// Accounts whose names fall outside this set are orphans to the purge pass.
type IdentityProvider interface {
	KnownNames(ctx context.Context) ([]string, error)
}
