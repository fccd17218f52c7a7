package core

import "github.com/shopspring/decimal"

// Balances are the three running totals derived from a transaction history.
type Balances struct {
	Wallet  decimal.Decimal
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Apply folds one transaction into the totals. The receiver is not modified.
func (b Balances) Apply(t Transaction) Balances {
	b.Wallet = b.Wallet.Add(t.Signed())
	switch t.Kind {
	case Income:
		b.Income = b.Income.Add(t.Amount)
	case Expense:
		b.Expense = b.Expense.Add(t.Amount)
	}
	return b
}

// Fold computes the balances of a whole history from zero.
func Fold(history []Transaction) Balances {
	var b Balances
	for _, t := range history {
		b = b.Apply(t)
	}
	return b
}

// Consistent reports whether Wallet == Income - Expense.
func (b Balances) Consistent() bool {
	return b.Wallet.Equal(b.Income.Sub(b.Expense))
}

// Equal compares the three totals by value.
func (b Balances) Equal(o Balances) bool {
	return b.Wallet.Equal(o.Wallet) && b.Income.Equal(o.Income) && b.Expense.Equal(o.Expense)
}
