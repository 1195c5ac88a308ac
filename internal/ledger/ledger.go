package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/model"
	"coinledger/internal/money"
	"coinledger/internal/repository"
	"coinledger/pkg/idgen"

	"gorm.io/gorm"
)

const defaultCommitTimeout = 5 * time.Second

// Ledger is the double-entry money ledger: the account store, the journal of
// signed transaction pairs, and the transfer engine over both.
//
// One commit runs at a time across the whole ledger, unrelated account pairs
// included. The single-writer section keeps the two-leg write of one transfer
// from interleaving with another's, which would corrupt pairing or
// double-validate a balance. Throughput is traded for an auditable
// consistency argument.
type Ledger struct {
	db       *gorm.DB
	accounts *repository.AccountRepository
	journal  *repository.TransactionRepository
	outbox   *repository.OutboxRepository
	refs     *idgen.Snowflake

	worldID       int64
	startingMoney money.Money
	commitTimeout time.Duration
	outboxTopic   string

	identity IdentityProvider

	// commitCh is a one-slot semaphore: holding the token is holding the
	// ledger-wide commit section.
	commitCh chan struct{}

	observerMu        sync.RWMutex
	pendingHandlers   []PendingTransferHandler
	completedHandlers []TransferCompletedHandler
	progressHandlers  []LoadProgressHandler
}

// NewLedger wires the ledger over an opened database.
func NewLedger(db *gorm.DB, cfg *config.Config) (*Ledger, error) {
	startingMoney, err := money.Parse(cfg.Business.StartingMoney)
	if err != nil {
		return nil, fmt.Errorf("invalid starting_money: %w", err)
	}
	if startingMoney.IsNegative() {
		return nil, fmt.Errorf("starting_money must not be negative")
	}

	commitTimeout := defaultCommitTimeout
	if cfg.Business.CommitTimeoutSeconds > 0 {
		commitTimeout = time.Duration(cfg.Business.CommitTimeoutSeconds) * time.Second
	}

	refs, err := idgen.NewSnowflake(1)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		db:            db,
		accounts:      repository.NewAccountRepository(db),
		journal:       repository.NewTransactionRepository(db),
		outbox:        repository.NewOutboxRepository(db),
		refs:          refs,
		worldID:       cfg.Business.WorldID,
		startingMoney: startingMoney,
		commitTimeout: commitTimeout,
		outboxTopic:   cfg.Kafka.Topic.TransferCompleted,
		commitCh:      make(chan struct{}, 1),
	}, nil
}

// SetIdentityProvider injects the external identity source consulted by the
// orphaned-accounts purge pass. Without one, that pass is skipped.
func (l *Ledger) SetIdentityProvider(p IdentityProvider) {
	l.identity = p
}

// ============================================================================
// Observer registration
// ============================================================================

// OnPendingTransfer registers a synchronous pre-commit observer. Observers may
// mutate the pending amount or message, or veto the transfer.
func (l *Ledger) OnPendingTransfer(h PendingTransferHandler) {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()
	l.pendingHandlers = append(l.pendingHandlers, h)
}

// OnTransferCompleted registers a post-commit observer.
func (l *Ledger) OnTransferCompleted(h TransferCompletedHandler) {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()
	l.completedHandlers = append(l.completedHandlers, h)
}

// OnLoadProgress registers an observer for load and purge progress.
func (l *Ledger) OnLoadProgress(h LoadProgressHandler) {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()
	l.progressHandlers = append(l.progressHandlers, h)
}

func (l *Ledger) firePending(p *PendingTransfer) {
	l.observerMu.RLock()
	handlers := l.pendingHandlers
	l.observerMu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (l *Ledger) fireCompleted(r *TransferReceipt) {
	l.observerMu.RLock()
	handlers := l.completedHandlers
	l.observerMu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}

func (l *Ledger) fireProgress(label string, percent int) {
	l.observerMu.RLock()
	handlers := l.progressHandlers
	l.observerMu.RUnlock()
	for _, h := range handlers {
		h(label, percent)
	}
}

// ============================================================================
// Commit section
// ============================================================================

// acquireCommit takes the ledger-wide single-writer token, waiting at most the
// configured commit timeout.
func (l *Ledger) acquireCommit(ctx context.Context) error {
	select {
	case l.commitCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.commitTimeout):
		return ErrCommitTimeout
	}
}

func (l *Ledger) releaseCommit() {
	<-l.commitCh
}

// ============================================================================
// Transfer engine
// ============================================================================

// Transfer atomically moves amount from one account to the other.
//
// The committed result is always a bound pair of journal entries: a debit of
// -amount on from and a credit of +amount on to. Both cached balances are
// recomputed from the journal after commit; the delta is never applied
// arithmetically, so manual data edits cannot introduce drift.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID int64, amount money.Money, opts TransferOptions, message string) (*TransferReceipt, error) {
	from, err := l.accounts.GetByID(ctx, fromID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: source account %d", ErrInvalidTransfer, fromID)
		}
		return nil, err
	}
	to, err := l.accounts.GetByID(ctx, toID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: destination account %d", ErrInvalidTransfer, toID)
		}
		return nil, err
	}

	if err := l.validateTransfer(from, amount, opts); err != nil {
		return nil, err
	}

	// Veto hook. Runs strictly before any write; a cancelled transfer leaves
	// no partial state. Observers may mutate amount, message and options, so
	// the mutated values are validated again below.
	pending := &PendingTransfer{
		From:    from,
		To:      to,
		Amount:  amount,
		Options: opts,
		Message: message,
	}
	l.firePending(pending)
	if cancelled, reason := pending.Cancelled(); cancelled {
		if reason == "" {
			reason = "vetoed by observer"
		}
		return nil, fmt.Errorf("%w: %s", ErrTransferCancelled, reason)
	}
	amount = pending.Amount
	message = pending.Message
	opts = pending.Options
	if err := l.validateTransfer(from, amount, opts); err != nil {
		return nil, err
	}

	if err := l.acquireCommit(ctx); err != nil {
		return nil, err
	}
	defer l.releaseCommit()

	// Re-check funding against a fresh row now that no other commit can
	// interleave; the pre-flight balance may be stale by the time the token
	// is held.
	from, err = l.accounts.GetByID(ctx, from.ID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: account %d", ErrAccountVanished, fromID)
		}
		return nil, err
	}
	if err := l.validateTransfer(from, amount, opts); err != nil {
		return nil, err
	}

	reference := l.refs.TransferReference()
	receipt := &TransferReceipt{
		Reference:       reference,
		FromAccountID:   from.ID,
		FromAccountName: from.Name,
		ToAccountID:     to.ID,
		ToAccountName:   to.Name,
		Amount:          amount,
		AmountDisplay:   amount.String(),
		Options:         opts,
		Message:         message,
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Both rows must still exist; a purge may have raced the pre-flight
		// lookups.
		for _, id := range []int64{from.ID, to.ID} {
			exists, err := l.accounts.Exists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: account %d", ErrAccountVanished, id)
			}
		}

		now := time.Now().UTC()
		debit := &model.Transaction{
			AccountID: from.ID,
			Amount:    -int64(amount),
			Message:   message,
			Flags:     model.FundsAvailable,
			Timestamp: now,
		}
		if err := l.journal.Append(ctx, tx, debit); err != nil {
			return fmt.Errorf("failed to append debit leg: %w", err)
		}

		credit := &model.Transaction{
			AccountID: to.ID,
			Amount:    int64(amount),
			Message:   message,
			Flags:     model.FundsAvailable,
			Timestamp: now,
		}
		if err := l.journal.Append(ctx, tx, credit); err != nil {
			return fmt.Errorf("failed to append credit leg: %w", err)
		}

		if err := l.journal.Bind(ctx, tx, debit.ID, credit.ID); err != nil {
			return fmt.Errorf("failed to bind transfer legs: %w", err)
		}

		receipt.SourceTransactionID = debit.ID
		receipt.DestTransactionID = credit.ID
		receipt.CommittedAt = now

		if l.outboxTopic != "" {
			payload, err := json.Marshal(receipt)
			if err != nil {
				return err
			}
			outboxMsg := &model.OutboxMessage{
				MessageKey: reference,
				Topic:      l.outboxTopic,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			if err := l.outbox.Create(ctx, tx, outboxMsg); err != nil {
				return fmt.Errorf("failed to write outbox message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fromBalance, err := l.ResyncBalance(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	toBalance, err := l.ResyncBalance(ctx, to.ID)
	if err != nil {
		return nil, err
	}
	receipt.FromBalance = fromBalance
	receipt.ToBalance = toBalance

	l.fireCompleted(receipt)
	return receipt, nil
}

// validateTransfer applies the pre-flight checks: a strictly positive amount,
// and a funding account that is deficit-exempt, explicitly permitted to go
// negative, or sufficiently funded.
func (l *Ledger) validateTransfer(from *model.Account, amount money.Money, opts TransferOptions) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransfer, amount)
	}
	if from.CanRunDeficit() || opts.Has(AllowDeficitOnNormalAccount) {
		return nil
	}
	if money.Money(from.Balance).Compare(amount) < 0 {
		return fmt.Errorf("%w: account %q holds %s, needs %s",
			ErrInsufficientFunds, from.Name, money.Money(from.Balance), amount)
	}
	return nil
}

// ResyncBalance recomputes one account's cached balance from its journal.
func (l *Ledger) ResyncBalance(ctx context.Context, accountID int64) (money.Money, error) {
	sum, err := l.journal.SumForAccount(ctx, nil, accountID)
	if err != nil {
		return 0, err
	}
	if err := l.accounts.UpdateBalance(ctx, nil, accountID, sum); err != nil {
		return 0, err
	}
	return money.Money(sum), nil
}

// ============================================================================
// Account boundary
// ============================================================================

// FindAccount resolves an account by display name.
func (l *Ledger) FindAccount(ctx context.Context, name string) (*model.Account, error) {
	return l.accounts.GetByName(ctx, name)
}

// GetAccount resolves an account by identity.
func (l *Ledger) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return l.accounts.GetByID(ctx, id)
}

// ListAccounts returns a snapshot of every account. Ranking and display
// ordering belong to the caller.
func (l *Ledger) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return l.accounts.List(ctx)
}

// CreateAccount creates an account with explicit flags.
func (l *Ledger) CreateAccount(ctx context.Context, name string, worldID int64, flags model.AccountFlags, description string) (*model.Account, error) {
	account := &model.Account{
		Name:        name,
		WorldID:     worldID,
		Flags:       flags,
		Description: description,
	}
	if err := l.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// FindOrCreatePlayerAccount resolves a player identity to its account,
// creating one on first reference. A fresh account receives the configured
// starting money from the world account.
func (l *Ledger) FindOrCreatePlayerAccount(ctx context.Context, name string) (*model.Account, error) {
	account, created, err := l.accounts.GetOrCreate(ctx, name, l.worldID)
	if err != nil {
		return nil, err
	}
	if !created || l.startingMoney.IsZero() {
		return account, nil
	}

	world, err := l.WorldAccount(ctx, l.worldID)
	if err != nil {
		log.Printf("[Ledger] starting money for %q skipped: %v", name, err)
		return account, nil
	}
	_, err = l.Transfer(ctx, world.ID, account.ID, l.startingMoney,
		AnnounceToReceiver, "Starting money")
	if err != nil {
		log.Printf("[Ledger] starting money grant for %q failed: %v", name, err)
		return account, nil
	}
	return l.accounts.GetByID(ctx, account.ID)
}

// WorldAccount finds or creates the per-world system account, the source of
// newly issued currency. It is always enabled, locked to its world, and
// permitted to run a deficit.
func (l *Ledger) WorldAccount(ctx context.Context, worldID int64) (*model.Account, error) {
	var account model.Account
	err := l.db.WithContext(ctx).
		Where("world_id = ? AND flags & ? != 0 AND flags & ? = 0",
			worldID, int(model.AccountSystem), int(model.AccountPlugin)).
		First(&account).Error
	if err == nil {
		if !account.IsEnabled() {
			return nil, fmt.Errorf("%w: world %d", ErrWorldAccountDisabled, worldID)
		}
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &model.Account{
		Name:        "SYSTEM",
		WorldID:     worldID,
		Flags:       model.AccountEnabled | model.AccountLockedToWorld | model.AccountSystem,
		Description: fmt.Sprintf("World account for world %d", worldID),
	}
	if err := l.accounts.Create(ctx, created); err != nil {
		return nil, err
	}
	log.Printf("[Ledger] created world account for world %d", worldID)
	return created, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Load reconstructs every cached balance by aggregating the journal, emitting
// progress events as it goes. Stored balances are not trusted across a
// restart.
func (l *Ledger) Load(ctx context.Context) error {
	l.fireProgress("Loading", 0)

	type accountBalance struct {
		ID      int64
		Balance int64
	}
	var rows []accountBalance
	err := l.db.WithContext(ctx).Raw(`
		SELECT bank_account.id AS id, COALESCE(SUM(t.amount), 0) AS balance
		FROM bank_account
		LEFT JOIN bank_account_transaction t ON t.account_id = bank_account.id
		GROUP BY bank_account.id`).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate journal: %w", err)
	}

	oldPercent := 0
	for i, row := range rows {
		if err := l.accounts.UpdateBalance(ctx, nil, row.ID, row.Balance); err != nil {
			return err
		}
		if percent := (i + 1) * 100 / len(rows); percent != oldPercent {
			l.fireProgress("Loading", percent)
			oldPercent = percent
		}
	}
	l.fireProgress("Loading", 100)

	var entryCount int64
	if err := l.db.WithContext(ctx).Model(&model.Transaction{}).Count(&entryCount).Error; err != nil {
		return err
	}
	log.Printf("[Ledger] loaded %d accounts, %d journal entries", len(rows), entryCount)
	return nil
}

// Save flushes pending journal state. The gorm-backed journal writes through
// on every commit, so there is nothing to flush; the hook exists for the
// service lifecycle.
func (l *Ledger) Save(ctx context.Context) error {
	return nil
}
