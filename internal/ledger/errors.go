package ledger

import "errors"

var (
	// ErrInvalidTransfer reports a transfer rejected by pre-flight validation:
	// a missing destination or a non-positive amount. Direction is encoded by
	// which account funds the transfer, never by a negative amount.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer")

	// ErrInsufficientFunds reports that the funding account cannot cover the
	// amount and no deficit exemption applies.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrTransferCancelled reports a veto by a pending-transfer observer.
	// No writes occur for a cancelled transfer.
	ErrTransferCancelled = errors.New("ledger: transfer cancelled")

	// ErrCommitTimeout reports that the wait for the ledger-wide commit
	// section exceeded the configured bound. Retryable; no state changed.
	ErrCommitTimeout = errors.New("ledger: timed out waiting for commit section")

	// ErrAccountVanished reports that an account referenced by an in-flight
	// transfer was deleted from the store before commit.
	ErrAccountVanished = errors.New("ledger: account no longer exists")

	// ErrWorldAccountDisabled reports that the per-world system account exists
	// but is not enabled; currency issuance cannot proceed.
	ErrWorldAccountDisabled = errors.New("ledger: world account is disabled")
)
