package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the expense events queue.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseUpdated = "expense.updated"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEventMessage is a lightweight notification about an expense
// mutation. Consumers fetch the full row themselves if they need it.
type ExpenseEventMessage struct {
	Event      string    `json:"event"`
	ExpenseID  int64     `json:"expense_id"`
	OwnerID    int64     `json:"owner_id"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(event string, expenseID, ownerID, priceCents int64, currency string) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		Event:      event,
		ExpenseID:  expenseID,
		OwnerID:    ownerID,
		PriceCents: priceCents,
		Currency:   currency,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventMessageFromJSON creates a message from JSON bytes
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
