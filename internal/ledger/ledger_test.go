package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"budget/internal/core"
	"budget/internal/storage"
	"budget/internal/storage/memory"
)

// fakeStore wraps the memory store and fails on demand.
type fakeStore struct {
	*memory.Store
	initErr   error
	loadErr   error
	appendErr error
	appends   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{Store: memory.New()}
}

func (f *fakeStore) Initialize(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	return f.Store.Initialize(ctx)
}

func (f *fakeStore) Append(ctx context.Context, tx core.Transaction) (int64, error) {
	f.appends++
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	return f.Store.Append(ctx, tx)
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]core.Transaction, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Store.LoadAll(ctx)
}

func readyLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l := New()
	if err := l.Initialize(context.Background(), store); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return l
}

func mustSnapshot(t *testing.T, l *Ledger) ([]core.Transaction, core.Balances) {
	t.Helper()
	h, b, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return h, b
}

func assertSameState(t *testing.T, gotH []core.Transaction, gotB core.Balances, wantH []core.Transaction, wantB core.Balances) {
	t.Helper()
	if len(gotH) != len(wantH) {
		t.Fatalf("history length %d, want %d", len(gotH), len(wantH))
	}
	for i := range wantH {
		if !gotH[i].Equal(wantH[i]) {
			t.Fatalf("history[%d] = %+v, want %+v", i, gotH[i], wantH[i])
		}
	}
	if !gotB.Equal(wantB) {
		t.Fatalf("balances = %+v, want %+v", gotB, wantB)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNotInitialized(t *testing.T) {
	l := New()
	if l.Ready() {
		t.Fatalf("new ledger must not be ready")
	}
	if _, err := l.Record(context.Background(), "10", "x", "Income"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Record: expected ErrNotInitialized, got %v", err)
	}
	if _, err := l.Balances(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Balances: expected ErrNotInitialized, got %v", err)
	}
	if _, err := l.History(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("History: expected ErrNotInitialized, got %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budget.db")
	repo := storage.NewSQLiteRepository(path)
	defer repo.Close()

	l := readyLedger(t, repo)
	if h, _ := l.History(); len(h) != 0 {
		t.Fatalf("expected empty history, got %v", h)
	}

	paycheck, err := l.Record(ctx, "100", "Paycheck", "Income")
	if err != nil {
		t.Fatalf("record paycheck: %v", err)
	}
	groceries, err := l.Record(ctx, "30", "Groceries", "Expense")
	if err != nil {
		t.Fatalf("record groceries: %v", err)
	}
	if paycheck.ID == 0 || groceries.ID <= paycheck.ID {
		t.Fatalf("ids not assigned in order: %d, %d", paycheck.ID, groceries.ID)
	}

	history, balances := mustSnapshot(t, l)
	want := core.Balances{Wallet: dec("70"), Income: dec("100"), Expense: dec("30")}
	assertSameState(t, history, balances, []core.Transaction{paycheck, groceries}, want)
	if history[0].Description != "Paycheck" || history[1].Kind != core.Expense {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Reload into a fresh ledger against a fresh handle on the same file.
	repo2 := storage.NewSQLiteRepository(path)
	defer repo2.Close()
	reloaded := readyLedger(t, repo2)
	h2, b2 := mustSnapshot(t, reloaded)
	assertSameState(t, h2, b2, history, balances)
}

func TestWalletIdentityAndSingleBalanceChange(t *testing.T) {
	ctx := context.Background()
	l := readyLedger(t, newFakeStore())

	inputs := []struct {
		amount string
		kind   core.Kind
	}{
		{"100", core.Income},
		{"0.10", core.Expense},
		{"12,34", core.Expense},
		{"0.2", core.Income},
		{"999999.99", core.Income},
		{"1000000", core.Expense},
	}

	for i, in := range inputs {
		before, _ := l.Balances()
		tx, err := l.Record(ctx, in.amount, fmt.Sprintf("tx %d", i), string(in.kind))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		after, _ := l.Balances()

		if !after.Consistent() {
			t.Fatalf("after %d: wallet %s != income %s - expense %s", i, after.Wallet, after.Income, after.Expense)
		}
		incomeDelta := after.Income.Sub(before.Income)
		expenseDelta := after.Expense.Sub(before.Expense)
		switch in.kind {
		case core.Income:
			if !incomeDelta.Equal(tx.Amount) || !expenseDelta.IsZero() {
				t.Fatalf("after %d: income delta %s, expense delta %s", i, incomeDelta, expenseDelta)
			}
		case core.Expense:
			if !expenseDelta.Equal(tx.Amount) || !incomeDelta.IsZero() {
				t.Fatalf("after %d: income delta %s, expense delta %s", i, incomeDelta, expenseDelta)
			}
		}

		history, _ := l.History()
		if got := core.Fold(history); !got.Equal(after) {
			t.Fatalf("after %d: balances %+v are not the fold of history %+v", i, after, got)
		}
	}
}

func TestRejectionLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := readyLedger(t, store)
	if _, err := l.Record(ctx, "50", "seed", "Income"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	beforeH, beforeB := mustSnapshot(t, l)
	appendsBefore := store.appends

	cases := []struct {
		amount, desc, kind string
		want               error
	}{
		{"-5", "x", "Income", core.ErrInvalidAmount},
		{"0", "x", "Expense", core.ErrInvalidAmount},
		{"abc", "x", "Expense", core.ErrInvalidAmount},
		{"", "x", "Income", core.ErrInvalidAmount},
		{"10", "x", "Gift", core.ErrInvalidKind},
		{"10", "x", "income", core.ErrInvalidKind},
	}
	for _, tc := range cases {
		_, err := l.Record(ctx, tc.amount, tc.desc, tc.kind)
		if !errors.Is(err, tc.want) {
			t.Fatalf("Record(%q, %q, %q): expected %v, got %v", tc.amount, tc.desc, tc.kind, tc.want, err)
		}
		h, b := mustSnapshot(t, l)
		assertSameState(t, h, b, beforeH, beforeB)
	}
	if store.appends != appendsBefore {
		t.Fatalf("invalid input reached the store %d times", store.appends-appendsBefore)
	}
}

func TestStoreFailureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := readyLedger(t, store)
	if _, err := l.Record(ctx, "100", "Paycheck", "Income"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	beforeH, beforeB := mustSnapshot(t, l)

	store.appendErr = fmt.Errorf("%w: disk full", storage.ErrStorageWrite)
	_, err := l.Record(ctx, "30", "Groceries", "Expense")
	if !errors.Is(err, storage.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	h, b := mustSnapshot(t, l)
	assertSameState(t, h, b, beforeH, beforeB)

	// The ledger stays usable once the store recovers.
	store.appendErr = nil
	if _, err := l.Record(ctx, "30", "Groceries", "Expense"); err != nil {
		t.Fatalf("record after recovery: %v", err)
	}
	b, _ = l.Balances()
	if !b.Wallet.Equal(dec("70")) {
		t.Fatalf("wallet = %s, want 70", b.Wallet)
	}
}

func TestInitializeFailures(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	store.initErr = fmt.Errorf("%w: permission denied", storage.ErrStorageUnavailable)
	l := New()
	if err := l.Initialize(ctx, store); !errors.Is(err, storage.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if l.Ready() {
		t.Fatalf("ledger must stay uninitialized")
	}

	store = newFakeStore()
	store.loadErr = fmt.Errorf("%w: io error", storage.ErrStorageRead)
	if err := l.Initialize(ctx, store); !errors.Is(err, storage.ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %v", err)
	}
	if _, err := l.Balances(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized after failed load, got %v", err)
	}

	if err := l.Initialize(ctx, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestFailedReinitializeDropsState(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	l := readyLedger(t, store)
	if _, err := l.Record(ctx, "5", "x", "Income"); err != nil {
		t.Fatalf("record: %v", err)
	}

	store.loadErr = fmt.Errorf("%w: io error", storage.ErrStorageRead)
	if err := l.Initialize(ctx, store); err == nil {
		t.Fatalf("expected reload failure")
	}
	if l.Ready() {
		t.Fatalf("ledger must not serve stale state after a failed reload")
	}

	store.loadErr = nil
	if err := l.Initialize(ctx, store); err != nil {
		t.Fatalf("reload: %v", err)
	}
	h, b := mustSnapshot(t, l)
	if len(h) != 1 || !b.Income.Equal(dec("5")) {
		t.Fatalf("unexpected state after reload: %v %+v", h, b)
	}
}

func TestInitializeReplaysSeededStore(t *testing.T) {
	seeded := memory.New(
		core.Transaction{Amount: dec("100"), Description: "Paycheck", Kind: core.Income},
		core.Transaction{Amount: dec("30"), Description: "Groceries", Kind: core.Expense},
		core.Transaction{Amount: dec("2.5"), Description: "Coffee", Kind: core.Expense},
	)
	l := readyLedger(t, seeded)
	h, b := mustSnapshot(t, l)
	if len(h) != 3 || h[2].Description != "Coffee" {
		t.Fatalf("unexpected history: %+v", h)
	}
	want := core.Balances{Wallet: dec("67.5"), Income: dec("100"), Expense: dec("32.5")}
	if !b.Equal(want) {
		t.Fatalf("balances = %+v, want %+v", b, want)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	l := readyLedger(t, newFakeStore())
	if _, err := l.Record(context.Background(), "1", "orig", "Income"); err != nil {
		t.Fatalf("record: %v", err)
	}
	h, _ := l.History()
	h[0].Description = "mutated"
	again, _ := l.History()
	if again[0].Description != "orig" {
		t.Fatalf("History exposed internal state")
	}
}

func TestConcurrentRecordAndRead(t *testing.T) {
	ctx := context.Background()
	l := readyLedger(t, newFakeStore())

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			kind := "Income"
			if w%2 == 1 {
				kind = "Expense"
			}
			for i := 0; i < perWriter; i++ {
				if _, err := l.Record(ctx, "1.5", "c", kind); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(w)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			h, b, err := l.Snapshot()
			if err != nil {
				t.Errorf("snapshot: %v", err)
				return
			}
			if !b.Consistent() || !core.Fold(h).Equal(b) {
				t.Errorf("reader observed inconsistent state: %+v", b)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone

	h, b := mustSnapshot(t, l)
	if len(h) != writers*perWriter {
		t.Fatalf("history length %d, want %d", len(h), writers*perWriter)
	}
	for i := 1; i < len(h); i++ {
		if h[i].ID <= h[i-1].ID {
			t.Fatalf("history out of id order at %d", i)
		}
	}
	if !b.Wallet.IsZero() {
		t.Fatalf("equal income and expense writers should net to zero, got %s", b.Wallet)
	}
}
