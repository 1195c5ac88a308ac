package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"coinledger/internal/model"
)

// Squash collapses every account's journal into one synthetic entry carrying
// the net sum, then resyncs the cached balances. Balances are unchanged;
// history is discarded. Squashing an already-squashed journal is a no-op in
// effect, so the operation is idempotent.
//
// The whole pass runs inside the commit section: a transfer written mid-squash
// would otherwise be lost when its account's entries are replaced.
func (l *Ledger) Squash(ctx context.Context) error {
	if err := l.acquireCommit(ctx); err != nil {
		return err
	}
	defer l.releaseCommit()

	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return err
	}

	log.Printf("[Ledger] squashing journal for %d accounts", len(accounts))

	for _, account := range accounts {
		sum, err := l.journal.SumForAccount(ctx, nil, account.ID)
		if err != nil {
			return fmt.Errorf("squash: failed to sum account %d: %w", account.ID, err)
		}

		squashed := &model.Transaction{
			AccountID: account.ID,
			Amount:    sum,
			Message:   model.SquashMessage,
			Flags:     model.FundsAvailable | model.Squashed,
			Timestamp: time.Now().UTC(),
		}
		if err := l.journal.ReplaceForAccount(ctx, account.ID, []*model.Transaction{squashed}); err != nil {
			return fmt.Errorf("squash: failed to replace entries for account %d: %w", account.ID, err)
		}

		if err := l.accounts.UpdateBalance(ctx, nil, account.ID, sum); err != nil {
			return fmt.Errorf("squash: failed to resync account %d: %w", account.ID, err)
		}
	}

	log.Printf("[Ledger] squash complete")
	return nil
}
