package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-03-01", NewDate(2024, 3, 1), true},
		{"2024-03-01T10:22:33.123456", NewDate(2024, 3, 1), true},
		{" 2025-12-31 ", NewDate(2025, 12, 31), true},
		{"2024-13-01", Date{}, false},
		{"yesterday", Date{}, false},
		{"", Date{}, false},
	}
	for i, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidDate) {
				t.Fatalf("case %d expected ErrInvalidDate, got %v", i, err)
			}
			continue
		}
		if !got.Equal(tc.want) {
			t.Fatalf("case %d got %s want %s", i, got, tc.want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct{ D Date }{NewDate(2024, 3, 1)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"D":"2024-03-01"}` {
		t.Fatalf("unexpected json %s", b)
	}
	var out struct{ D Date }
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.D.Equal(NewDate(2024, 3, 1)) {
		t.Fatalf("round trip mismatch: %s", out.D)
	}
}

func TestNewExpenseFreshDefaults(t *testing.T) {
	a, err := NewExpense("b@x.io", "a@x.io", decimal.NewFromInt(10), Date{}, "lunch", "")
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	b, err := NewExpense("b@x.io", "a@x.io", decimal.NewFromInt(10), Date{}, "lunch", "")
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if len(a.ID) != 36 {
		t.Fatalf("expected uuid string, got %q", a.ID)
	}
	today := DateOf(time.Now())
	if !a.Date.Equal(today) && !a.Date.Equal(DateOf(time.Now().Add(-time.Minute))) {
		t.Fatalf("default date %s is not today %s", a.Date, today)
	}
}

func TestNewExpenseValidation(t *testing.T) {
	if _, err := NewExpense("b@x.io", "", decimal.NewFromInt(1), NewDate(2024, 1, 1), "", ""); err != nil {
		t.Fatalf("empty payor should default to payee, got %v", err)
	}
	e, _ := NewExpense("b@x.io", "", decimal.NewFromInt(1), NewDate(2024, 1, 1), "", "")
	if !e.SelfPaid() || len(e.Participants()) != 1 {
		t.Fatalf("expected self-paid expense, got %+v", e)
	}

	bads := []struct {
		user   string
		amount decimal.Decimal
		want   error
	}{
		{"", decimal.NewFromInt(1), ErrEmptyID},
		{"b@x.io", decimal.NewFromInt(-1), ErrInvalidAmount},
	}
	for i, tc := range bads {
		_, err := NewExpense(tc.user, "a@x.io", tc.amount, NewDate(2024, 1, 1), "", "")
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}

	zero, err := NewExpense("b@x.io", "a@x.io", decimal.Zero, NewDate(2024, 1, 1), "", "")
	if err != nil || !zero.Amount.IsZero() {
		t.Fatalf("zero amount must be accepted, got %v", err)
	}
}

func TestUserCloneDoesNotAlias(t *testing.T) {
	u := NewUser("a@x.io", "A")
	u.FriendIDs = append(u.FriendIDs, "b@x.io")
	c := u.Clone()
	c.FriendIDs[0] = "mutated"
	if u.FriendIDs[0] != "b@x.io" {
		t.Fatalf("clone aliased friend ids")
	}
}

func TestIDListHelpers(t *testing.T) {
	ids := AppendUnique([]string{"a"}, "b")
	ids = AppendUnique(ids, "a")
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	ids = RemoveID(ids, "a")
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected ids after remove: %v", ids)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	kinds := []error{
		UserNotFound("x"),
		UserExists("x"),
		ExpenseNotFound("x"),
		BackendError("get", errors.New("timeout")),
	}
	for _, err := range kinds {
		if !errors.Is(err, ErrRepository) {
			t.Fatalf("%v should be a repository failure", err)
		}
	}
	if errors.Is(UserNotFound("x"), ErrExpenseNotFound) || errors.Is(ExpenseNotFound("x"), ErrUserNotFound) {
		t.Fatalf("not-found kinds must stay distinct")
	}
	cause := errors.New("connection reset")
	backend := BackendError("get users/x", cause)
	if IsNotFound(backend) {
		t.Fatalf("backend fault classified as not found")
	}
	if !errors.Is(backend, cause) || !errors.Is(backend, ErrBackend) {
		t.Fatalf("backend error must wrap both ErrBackend and its cause")
	}
}
