package core

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the ISO-8601 calendar date form used on the wire and in storage.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date held at UTC midnight.
	Date struct {
		time.Time
	}

	// User is a participant identified by email address.
	User struct {
		ID         string
		Name       string
		ExpenseIDs []string // expenses the user pays or receives
		FriendIDs  []string // symmetric friendships
	}

	// Expense is recorded against a payee (UserID) and paid by Payor.
	Expense struct {
		ID          string
		UserID      string
		Payor       string
		Amount      decimal.Decimal
		Date        Date
		Description string
		Comments    string
	}
)

var (
	ErrEmptyID       = errors.New("empty id")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string. Longer ISO timestamps are accepted
// and truncated to their date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Month returns the month number (1-12)
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewExpense builds an expense with a fresh random id. A zero date defaults
// to today, evaluated on every call.
func NewExpense(userID, payor string, amount decimal.Decimal, date Date, description, comments string) (Expense, error) {
	e := Expense{
		ID:          uuid.NewString(),
		UserID:      strings.TrimSpace(userID),
		Payor:       strings.TrimSpace(payor),
		Amount:      amount,
		Date:        date,
		Description: description,
		Comments:    comments,
	}
	if e.Payor == "" {
		e.Payor = e.UserID
	}
	if e.Date.IsZero() {
		e.Date = Today()
	}
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	return e, nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" || e.UserID == "" || e.Payor == "" {
		return ErrEmptyID
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// SelfPaid reports whether payee and payor are the same user.
func (e Expense) SelfPaid() bool {
	return e.UserID == e.Payor
}

// Participants returns the distinct users linked to the expense, payee first.
func (e Expense) Participants() []string {
	if e.SelfPaid() {
		return []string{e.UserID}
	}
	return []string{e.UserID, e.Payor}
}

func (e Expense) ToMap() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"user_id":     e.UserID,
		"payor":       e.Payor,
		"amount":      e.Amount.String(),
		"date":        e.Date.String(),
		"description": e.Description,
		"comments":    e.Comments,
	}
}

// NewUser returns a user with empty relationship lists.
func NewUser(id, name string) User {
	return User{ID: strings.TrimSpace(id), Name: name, ExpenseIDs: []string{}, FriendIDs: []string{}}
}

// Clone returns a deep copy so callers cannot alias repository state.
func (u User) Clone() User {
	u.ExpenseIDs = cloneIDs(u.ExpenseIDs)
	u.FriendIDs = cloneIDs(u.FriendIDs)
	return u
}

func (u User) HasFriend(id string) bool {
	return slices.Contains(u.FriendIDs, id)
}

func (u User) HasExpense(id string) bool {
	return slices.Contains(u.ExpenseIDs, id)
}

func (u User) ToMap() map[string]any {
	return map[string]any{
		"id":          u.ID,
		"name":        u.Name,
		"expense_ids": cloneIDs(u.ExpenseIDs),
		"friend_ids":  cloneIDs(u.FriendIDs),
	}
}

func cloneIDs(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}

// AppendUnique appends id unless already present.
func AppendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

// RemoveID returns ids without any occurrence of id.
func RemoveID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
