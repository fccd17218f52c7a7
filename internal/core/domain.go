package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "Income"
	Expense Kind = "Expense"
)

type (
	// Kind is the direction of a transaction.
	Kind string

	// Transaction is one recorded movement of money. It is never mutated
	// once created; ID is zero until the store assigns one.
	Transaction struct {
		ID          int64
		Amount      decimal.Decimal
		Description string
		Kind        Kind
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid transaction kind")
)

// Kinds lists the accepted kinds in display order.
func Kinds() []Kind {
	return []Kind{Income, Expense}
}

// ParseKind maps the persisted/display string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Income, Expense:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) String() string {
	return string(k)
}

func (k Kind) Validate() error {
	_, err := ParseKind(string(k))
	return err
}

// NewTransaction builds an unpersisted transaction from already parsed values.
func NewTransaction(amount decimal.Decimal, description string, kind Kind) (Transaction, error) {
	tx := Transaction{
		Amount:      amount,
		Description: description,
		Kind:        kind,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return t.Kind.Validate()
}

// Signed returns the amount with the sign implied by the kind.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// WithID returns a copy carrying the store-assigned id.
func (t Transaction) WithID(id int64) Transaction {
	t.ID = id
	return t
}

// String renders the transaction the way the history list shows it.
func (t Transaction) String() string {
	return fmt.Sprintf("Type: %s, Amount: %s, Description: %s", t.Kind, FormatAmount(t.Amount), t.Description)
}

// Equal reports whether two transactions carry the same id, kind,
// description and amount value. Decimal exponents may differ.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.Kind == o.Kind &&
		t.Description == o.Description &&
		t.Amount.Equal(o.Amount)
}
