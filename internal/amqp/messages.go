package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"greevil/internal/core"
)

type EventType string

const (
	ExpenseAdded   EventType = "expense.added"
	ExpenseUpdated EventType = "expense.updated"
	ExpenseDeleted EventType = "expense.deleted"
)

var ErrInvalidEvent = errors.New("invalid expense event")

// ExpenseEvent announces a change to one expense. Consumers needing the
// current state re-read it from the repository by ExpenseID.
type ExpenseEvent struct {
	Type        EventType `json:"type"`
	ExpenseID   string    `json:"expense_id"`
	UserID      string    `json:"user_id"`
	Payor       string    `json:"payor"`
	Amount      string    `json:"amount"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewExpenseEvent(t EventType, e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		Type:        t,
		ExpenseID:   e.ID,
		UserID:      e.UserID,
		Payor:       e.Payor,
		Amount:      e.Amount.String(),
		Date:        e.Date.String(),
		Description: e.Description,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates a message body.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	switch msg.Type {
	case ExpenseAdded, ExpenseUpdated, ExpenseDeleted:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, msg.Type)
	}
	if msg.ExpenseID == "" {
		return nil, fmt.Errorf("%w: missing expense_id", ErrInvalidEvent)
	}
	return &msg, nil
}
