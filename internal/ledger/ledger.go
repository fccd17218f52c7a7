// Package ledger keeps the in-memory transaction history and the running
// balances derived from it, in lockstep with a durable Store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"budget/internal/core"
)

var ErrNotInitialized = errors.New("ledger not initialized")

// Store is the durable side of the ledger.
type Store interface {
	// Initialize ensures the schema exists. It must be idempotent.
	Initialize(ctx context.Context) error
	// Append persists one transaction and returns the id assigned to it.
	Append(ctx context.Context, tx core.Transaction) (int64, error)
	// LoadAll returns every persisted transaction in insertion order.
	LoadAll(ctx context.Context) ([]core.Transaction, error)
}

// Ledger is Uninitialized until Initialize succeeds, then Ready.
//
// Record holds the write lock across validate, persist and commit, so there
// is a single writer and readers never see history and balances disagree.
type Ledger struct {
	mu       sync.RWMutex
	store    Store
	ready    bool
	history  []core.Transaction
	balances core.Balances
	logger   *slog.Logger
}

type Option func(*Ledger)

// WithLogger sets the logger used for ledger events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize prepares store, loads its contents and rebuilds the balances by
// replaying every transaction. On failure the ledger is left Uninitialized
// with no partial state.
func (l *Ledger) Initialize(ctx context.Context, store Store) error {
	if store == nil {
		return errors.New("initialize ledger: nil store")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()

	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	history := make([]core.Transaction, 0, len(loaded))
	var balances core.Balances
	for _, tx := range loaded {
		history = append(history, tx)
		balances = balances.Apply(tx)
	}

	l.store = store
	l.history = history
	l.balances = balances
	l.ready = true

	l.logger.InfoContext(ctx, "Ledger initialized",
		"transactions", len(history),
		"wallet", balances.Wallet.String(),
		"income", balances.Income.String(),
		"expense", balances.Expense.String())
	return nil
}

func (l *Ledger) reset() {
	l.store = nil
	l.ready = false
	l.history = nil
	l.balances = core.Balances{}
}

// Record validates, persists and then applies one transaction.
//
// The store is written first and memory is only updated once the write
// succeeded, so a failed call leaves history and balances untouched.
func (l *Ledger) Record(ctx context.Context, amount, description, kind string) (core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return core.Transaction{}, ErrNotInitialized
	}

	value, err := core.ParseAmount(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", err, strings.TrimSpace(amount))
	}
	k, err := core.ParseKind(kind)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := core.NewTransaction(value, description, k)
	if err != nil {
		return core.Transaction{}, err
	}

	id, err := l.store.Append(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("persist transaction: %w", err)
	}
	tx = tx.WithID(id)

	l.history = append(l.history, tx)
	l.balances = l.balances.Apply(tx)

	l.logger.DebugContext(ctx, "Transaction recorded",
		"id", tx.ID,
		"kind", tx.Kind.String(),
		"amount", tx.Amount.String(),
		"wallet", l.balances.Wallet.String())
	return tx, nil
}

// Balances returns the current running totals.
func (l *Ledger) Balances() (core.Balances, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return core.Balances{}, ErrNotInitialized
	}
	return l.balances, nil
}

// History returns a copy of the recorded transactions, oldest first.
func (l *Ledger) History() ([]core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return nil, ErrNotInitialized
	}
	return append(make([]core.Transaction, 0, len(l.history)), l.history...), nil
}

// Snapshot returns history and balances read under one lock.
func (l *Ledger) Snapshot() ([]core.Transaction, core.Balances, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return nil, core.Balances{}, ErrNotInitialized
	}
	return append(make([]core.Transaction, 0, len(l.history)), l.history...), l.balances, nil
}

func (l *Ledger) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}
