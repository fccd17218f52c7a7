package http

import (
	"strings"

	"budget/internal/core"
)

// sanitizeInput removes control characters except tab and newlines, then trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

type balancesView struct {
	Wallet   string
	Income   string
	Expense  string
	Negative bool
}

func newBalancesView(b core.Balances) balancesView {
	return balancesView{
		Wallet:   core.FormatAmount(b.Wallet),
		Income:   core.FormatAmount(b.Income),
		Expense:  core.FormatAmount(b.Expense),
		Negative: b.Wallet.IsNegative(),
	}
}

type transactionView struct {
	ID          int64
	Kind        string
	Amount      string
	Description string
	Class       string
}

func newTransactionViews(history []core.Transaction) []transactionView {
	views := make([]transactionView, 0, len(history))
	for _, tx := range history {
		views = append(views, transactionView{
			ID:          tx.ID,
			Kind:        tx.Kind.String(),
			Amount:      core.FormatAmount(tx.Signed()),
			Description: tx.Description,
			Class:       strings.ToLower(tx.Kind.String()),
		})
	}
	return views
}

// JSON shapes for the API. Amounts are exact decimal strings.
type balancesJSON struct {
	Wallet  string `json:"wallet"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
}

type transactionJSON struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func toBalancesJSON(b core.Balances) balancesJSON {
	return balancesJSON{
		Wallet:  b.Wallet.String(),
		Income:  b.Income.String(),
		Expense: b.Expense.String(),
	}
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		Kind:        tx.Kind.String(),
		Amount:      tx.Amount.String(),
		Description: tx.Description,
	}
}
