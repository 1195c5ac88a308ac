package ledger

import (
	"context"
	"log"
)

// PurgeOptions selects the independent maintenance passes run by Purge.
type PurgeOptions int

const (
	// RemoveOrphanedAccounts deletes non-system accounts whose names have no
	// corresponding external identity.
	RemoveOrphanedAccounts PurgeOptions = 1 << iota
	// RemoveZeroBalanceAccounts deletes non-system accounts holding zero or
	// less.
	RemoveZeroBalanceAccounts
)

// Has reports whether every option in mask is set.
func (o PurgeOptions) Has(mask PurgeOptions) bool {
	return o&mask == mask
}

// Purge removes dead accounts and their journal entries.
//
// The deletion set is computed in full before anything is deleted, so an
// account selected by one pass is never re-evaluated by the other within the
// same run. System accounts are exempt from both passes. Runs inside the
// commit section so a purge cannot race a transfer's existence checks.
func (l *Ledger) Purge(ctx context.Context, opts PurgeOptions) (int, error) {
	if err := l.acquireCommit(ctx); err != nil {
		return 0, err
	}
	defer l.releaseCommit()

	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return 0, err
	}

	known := map[string]bool{}
	orphanPass := opts.Has(RemoveOrphanedAccounts)
	if orphanPass {
		if l.identity == nil {
			log.Printf("[Ledger] purge: no identity provider, skipping orphan pass")
			orphanPass = false
		} else {
			names, err := l.identity.KnownNames(ctx)
			if err != nil {
				return 0, err
			}
			for _, name := range names {
				known[name] = true
			}
		}
	}

	l.fireProgress("Scrub", 0)

	deleteSet := map[int64]bool{}
	var deleteOrder []int64
	oldPercent := 0
	for i, account := range accounts {
		if !account.IsSystemAccount() {
			if orphanPass && !known[account.Name] && !deleteSet[account.ID] {
				deleteSet[account.ID] = true
				deleteOrder = append(deleteOrder, account.ID)
			} else if opts.Has(RemoveZeroBalanceAccounts) && account.Balance <= 0 && !deleteSet[account.ID] {
				deleteSet[account.ID] = true
				deleteOrder = append(deleteOrder, account.ID)
			}
		}

		if percent := (i + 1) * 100 / len(accounts); percent != oldPercent {
			l.fireProgress("Scrub", percent)
			oldPercent = percent
		}
	}

	if len(deleteOrder) == 0 {
		return 0, nil
	}

	l.fireProgress("Clean", 0)
	oldPercent = 0
	for i, id := range deleteOrder {
		if err := l.accounts.Delete(ctx, id); err != nil {
			return i, err
		}
		if percent := (i + 1) * 100 / len(deleteOrder); percent != oldPercent {
			l.fireProgress("Clean", percent)
			oldPercent = percent
		}
	}

	log.Printf("[Ledger] purged %d accounts", len(deleteOrder))
	return len(deleteOrder), nil
}
