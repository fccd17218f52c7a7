package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"budget/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageWrite       = errors.New("storage write failed")
	ErrStorageRead        = errors.New("storage read failed")

	errNotOpen = errors.New("database not initialized")
)

// SQLiteRepository persists transactions in a single SQLite table. It keeps one
// long-lived connection; writes are serialized by limiting the pool to one
// connection.
type SQLiteRepository struct {
	path string

	mu      sync.RWMutex
	db      *sql.DB
	queries *Queries
}

// NewSQLiteRepository returns a repository for dbPath. No I/O happens until
// Initialize.
func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{path: dbPath}
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
}

// Initialize opens the database and ensures the schema exists. It is
// idempotent; every failure is reported as ErrStorageUnavailable.
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		if err := r.db.PingContext(ctx); err != nil {
			return fmt.Errorf("%w: ping database: %v", ErrStorageUnavailable, err)
		}
		if err := RunMigrations(r.path); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("%w: create db directory: %v", ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite", dsn(r.path))
	if err != nil {
		return fmt.Errorf("%w: open sqlite database: %v", ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping database: %v", ErrStorageUnavailable, err)
	}

	if err := RunMigrations(r.path); err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	r.db = db
	r.queries = New(db)

	slog.InfoContext(ctx, "SQLite store initialized", "path", r.path)
	return nil
}

func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.queries = nil
	return err
}

// Append inserts one transaction and returns the id assigned to it.
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.queries == nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageWrite, errNotOpen)
	}

	id, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		Amount:          tx.Amount.String(),
		Description:     tx.Description,
		TransactionType: tx.Kind.String(),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: create transaction: %v", ErrStorageWrite, err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"amount", tx.Amount.String(),
		"kind", tx.Kind.String())

	return id, nil
}

// LoadAll returns every stored transaction in insertion order.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.queries == nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, errNotOpen)
	}

	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrStorageRead, err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toCore()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrStorageRead, row.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.queries == nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageRead, errNotOpen)
	}
	n, err := r.queries.CountTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count transactions: %v", ErrStorageRead, err)
	}
	return n, nil
}

func (row TransactionRow) toCore() (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", row.Amount, core.ErrInvalidAmount)
	}
	kind, err := core.ParseKind(row.TransactionType)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:          row.ID,
		Amount:      amount,
		Description: row.Description,
		Kind:        kind,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}
