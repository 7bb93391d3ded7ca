package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Updatable field names as they appear on the wire.
const (
	FieldName = "name"

	FieldAmount      = "amount"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldComments    = "comments"
)

var ErrUnknownField = errors.New("unknown or read-only field")

type (
	// UserUpdate is a single typed change to a user. Relationship lists are
	// not updatable this way.
	UserUpdate struct {
		field string
		apply func(*User)
	}

	// ExpenseUpdate is a single typed change to an expense. Participants and
	// id are immutable.
	ExpenseUpdate struct {
		field string
		apply func(*Expense)
	}
)

func SetUserName(name string) UserUpdate {
	return UserUpdate{field: FieldName, apply: func(u *User) { u.Name = name }}
}

func (u UserUpdate) Field() string { return u.field }

// Apply mutates user in place. A zero UserUpdate is a no-op.
func (u UserUpdate) Apply(user *User) {
	if u.apply != nil {
		u.apply(user)
	}
}

func SetExpenseAmount(amount decimal.Decimal) ExpenseUpdate {
	return ExpenseUpdate{field: FieldAmount, apply: func(e *Expense) { e.Amount = amount }}
}

func SetExpenseDate(date Date) ExpenseUpdate {
	return ExpenseUpdate{field: FieldDate, apply: func(e *Expense) { e.Date = date }}
}

func SetExpenseDescription(description string) ExpenseUpdate {
	return ExpenseUpdate{field: FieldDescription, apply: func(e *Expense) { e.Description = description }}
}

func SetExpenseComments(comments string) ExpenseUpdate {
	return ExpenseUpdate{field: FieldComments, apply: func(e *Expense) { e.Comments = comments }}
}

func (u ExpenseUpdate) Field() string { return u.field }

// Apply mutates expense in place. A zero ExpenseUpdate is a no-op.
func (u ExpenseUpdate) Apply(e *Expense) {
	if u.apply != nil {
		u.apply(e)
	}
}

// ParseUserUpdate maps a wire field name and raw value to a typed update.
func ParseUserUpdate(field, value string) (UserUpdate, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldName:
		return SetUserName(strings.TrimSpace(value)), nil
	default:
		return UserUpdate{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// ParseExpenseUpdate maps a wire field name and raw value to a typed update,
// validating the value for its field.
func ParseExpenseUpdate(field, value string) (ExpenseUpdate, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldAmount:
		amount, err := ParseAmount(value)
		if err != nil {
			return ExpenseUpdate{}, err
		}
		return SetExpenseAmount(amount), nil
	case FieldDate:
		date, err := ParseDate(value)
		if err != nil {
			return ExpenseUpdate{}, err
		}
		return SetExpenseDate(date), nil
	case FieldDescription:
		return SetExpenseDescription(value), nil
	case FieldComments:
		return SetExpenseComments(value), nil
	default:
		return ExpenseUpdate{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}
