package amqp

import (
	"encoding/json"
	"time"

	"budget/internal/core"
)

// TransactionRecordedMessage announces a transaction that has been persisted
// and applied to the ledger, along with the balances right after it.
// Amounts travel as decimal strings so no precision is lost on the wire.
type TransactionRecordedMessage struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Wallet      string    `json:"wallet"`
	Income      string    `json:"income"`
	Expense     string    `json:"expense"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTransactionRecordedMessage builds the event for tx with the balances after it
func NewTransactionRecordedMessage(tx core.Transaction, balances core.Balances) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		ID:          tx.ID,
		Kind:        tx.Kind.String(),
		Amount:      tx.Amount.String(),
		Description: tx.Description,
		Wallet:      balances.Wallet.String(),
		Income:      balances.Income.String(),
		Expense:     balances.Expense.String(),
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON creates a message from JSON bytes
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
