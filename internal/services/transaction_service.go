package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/ledger"
	"budget/internal/storage"
)

// User-facing messages for failed recordings
const (
	MsgInvalidAmount = "Please enter a valid amount."
	MsgInvalidKind   = "Please choose Income or Expense."
	MsgStorageFailed = "Failed to save transaction to the database."
	MsgNotReady      = "The ledger is not ready yet, please try again."
)

// Ledger is the part of *ledger.Ledger the service depends on
type Ledger interface {
	Record(ctx context.Context, amount, description, kind string) (core.Transaction, error)
	Balances() (core.Balances, error)
	Snapshot() ([]core.Transaction, core.Balances, error)
	Ready() bool
}

// Publisher sends transaction events to the message broker
type Publisher interface {
	PublishTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error
	Close() error
}

// TransactionService orchestrates recordings across the ledger and AMQP
type TransactionService struct {
	ledger    Ledger
	publisher Publisher
	closers   []func() error
}

// NewTransactionService wires a ledger and an optional publisher. A nil
// publisher disables events.
func NewTransactionService(l Ledger, publisher Publisher) *TransactionService {
	return &TransactionService{
		ledger:    l,
		publisher: publisher,
	}
}

// OnClose registers a cleanup to run when the service closes
func (s *TransactionService) OnClose(fn func() error) {
	if fn != nil {
		s.closers = append(s.closers, fn)
	}
}

// Record stores one transaction through the ledger and publishes an event.
// A publish failure is logged and does not fail the call, the transaction
// is already durable.
func (s *TransactionService) Record(ctx context.Context, amount, description, kind string) (core.Transaction, core.Balances, error) {
	tx, err := s.ledger.Record(ctx, amount, description, kind)
	if err != nil {
		return core.Transaction{}, core.Balances{}, err
	}

	balances, err := s.ledger.Balances()
	if err != nil {
		return tx, core.Balances{}, fmt.Errorf("read balances: %w", err)
	}

	if err := s.publish(ctx, tx, balances); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction message",
			"id", tx.ID, "error", err)
	}

	return tx, balances, nil
}

func (s *TransactionService) publish(ctx context.Context, tx core.Transaction, balances core.Balances) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping transaction message")
		return nil
	}
	return s.publisher.PublishTransactionRecorded(ctx, amqp.NewTransactionRecordedMessage(tx, balances))
}

func (s *TransactionService) Balances() (core.Balances, error) {
	return s.ledger.Balances()
}

func (s *TransactionService) Snapshot() ([]core.Transaction, core.Balances, error) {
	return s.ledger.Snapshot()
}

func (s *TransactionService) Ready() bool {
	return s.ledger.Ready()
}

// Close closes the publisher and every registered cleanup
func (s *TransactionService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}
	return nil
}

// UserMessage maps a Record error to the message shown to the user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrInvalidAmount):
		return MsgInvalidAmount
	case errors.Is(err, core.ErrInvalidKind):
		return MsgInvalidKind
	case errors.Is(err, ledger.ErrNotInitialized):
		return MsgNotReady
	case errors.Is(err, storage.ErrStorageWrite), errors.Is(err, storage.ErrStorageUnavailable):
		return MsgStorageFailed
	default:
		return MsgStorageFailed
	}
}

// IsInputError reports whether err was caused by what the user typed
func IsInputError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidKind)
}
