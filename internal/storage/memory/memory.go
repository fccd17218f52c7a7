package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"budget/internal/core"
	"budget/internal/storage"
)

// Store keeps transactions in process memory. Contents are lost on exit.
type Store struct {
	mu     sync.Mutex
	items  []core.Transaction
	nextID int64
}

func New(seed ...core.Transaction) *Store {
	s := &Store{nextID: 1}
	for _, tx := range seed {
		if tx.Validate() != nil {
			continue
		}
		s.items = append(s.items, tx.WithID(s.nextID))
		s.nextID++
	}
	return s
}

// NewFromFile seeds the store from a text file with one "Kind,amount,description"
// entry per line. Blank lines, comments and malformed lines are skipped; a
// missing file yields an empty store.
func NewFromFile(path string) *Store {
	return New(readSeed(path)...)
}

func (s *Store) Initialize(_ context.Context) error {
	return nil
}

// Append stores the transaction and returns the next sequential id.
func (s *Store) Append(_ context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", storage.ErrStorageWrite, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.items = append(s.items, tx.WithID(id))
	return id, nil
}

func (s *Store) LoadAll(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]core.Transaction, 0, len(s.items)), s.items...), nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}

func readSeed(path string) []core.Transaction {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Transaction
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 2 {
			continue
		}
		kind, err := core.ParseKind(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		amount, err := core.ParseAmount(parts[1])
		if err != nil {
			continue
		}
		desc := ""
		if len(parts) == 3 {
			desc = strings.TrimSpace(parts[2])
		}
		out = append(out, core.Transaction{Amount: amount, Description: desc, Kind: kind})
	}
	return out
}
