package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"budget/internal/core"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "budget.db")
	repo := NewSQLiteRepository(path)
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestInitializeIsIdempotent(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Append(ctx, core.Transaction{Amount: decimal.NewFromInt(1), Kind: core.Income}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	other := NewSQLiteRepository(path)
	defer other.Close()
	if err := other.Initialize(ctx); err != nil {
		t.Fatalf("initialize existing schema: %v", err)
	}
	n, err := other.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("existing rows must survive re-initialize: n=%d err=%v", n, err)
	}
}

func TestInitializeUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Parent of the database is a regular file, so the directory cannot exist.
	repo := NewSQLiteRepository(filepath.Join(blocker, "budget.db"))
	err := repo.Initialize(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestInitializeCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(path, []byte(strings.Repeat("not a sqlite database ", 512)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo := NewSQLiteRepository(path)
	defer repo.Close()
	if err := repo.Initialize(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestAppendAndLoadAllOrdered(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty table must yield empty non-nil slice, got %#v", empty)
	}

	input := []core.Transaction{
		{Amount: decimal.RequireFromString("100"), Description: "Paycheck", Kind: core.Income},
		{Amount: decimal.RequireFromString("30.25"), Description: "Groceries", Kind: core.Expense},
		{Amount: decimal.RequireFromString("0.1"), Description: "", Kind: core.Income},
	}
	var lastID int64
	for i, tx := range input {
		id, err := repo.Append(ctx, tx)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if id <= lastID {
			t.Fatalf("ids must increase: %d after %d", id, lastID)
		}
		lastID = id
		input[i] = tx.WithID(id)
	}

	got, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(input) {
		t.Fatalf("expected %d rows, got %d", len(input), len(got))
	}
	for i := range input {
		if !got[i].Equal(input[i]) {
			t.Fatalf("row %d: got %+v want %+v", i, got[i], input[i])
		}
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Append(ctx, core.Transaction{Amount: decimal.NewFromInt(-1), Kind: core.Income})
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	_, err = repo.Append(ctx, core.Transaction{Amount: decimal.NewFromInt(1), Kind: "Gift"})
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestKindCheckConstraint(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.queries.CreateTransaction(context.Background(), CreateTransactionParams{
		Amount:          "1",
		TransactionType: "Gift",
	})
	if err == nil {
		t.Fatalf("expected CHECK constraint to reject unknown kind")
	}
}

func TestLoadAllRejectsBadRows(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.db.ExecContext(ctx, `INSERT INTO transactions (amount, description, transaction_type) VALUES ('-3', 'x', 'Income')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.LoadAll(ctx); !errors.Is(err, ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %v", err)
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	repo := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	ctx := context.Background()
	if _, err := repo.Append(ctx, core.Transaction{Amount: decimal.NewFromInt(1), Kind: core.Income}); !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	if _, err := repo.LoadAll(ctx); !errors.Is(err, ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %v", err)
	}
}

func TestAppendAfterClose(t *testing.T) {
	repo, _ := newTestRepo(t)
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := repo.Append(context.Background(), core.Transaction{Amount: decimal.NewFromInt(1), Kind: core.Income})
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite after close, got %v", err)
	}
}
