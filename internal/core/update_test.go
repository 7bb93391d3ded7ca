package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.34", "12.34", false},
		{"12,34", "12.34", false},
		{"0", "0", false},
		{" 7 ", "7", false},
		{"", "", true},
		{"-1", "", true},
		{"1.2.3", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseAmount(%q) err = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error %v", tt.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseExpenseUpdate(t *testing.T) {
	base := Expense{ID: "e1", UserID: "b", Payor: "a", Amount: decimal.NewFromInt(1), Date: NewDate(2024, 1, 1)}

	tests := []struct {
		field, value string
		check        func(Expense) bool
	}{
		{"amount", "9.50", func(e Expense) bool { return e.Amount.Equal(decimal.RequireFromString("9.5")) }},
		{"Date", "2024-02-29", func(e Expense) bool { return e.Date.Equal(NewDate(2024, 2, 29)) }},
		{"description", "dinner", func(e Expense) bool { return e.Description == "dinner" }},
		{"comments", "split later", func(e Expense) bool { return e.Comments == "split later" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			upd, err := ParseExpenseUpdate(tt.field, tt.value)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			e := base
			upd.Apply(&e)
			if !tt.check(e) {
				t.Fatalf("update %s=%s not applied: %+v", tt.field, tt.value, e)
			}
			if e.ID != base.ID || e.UserID != base.UserID || e.Payor != base.Payor {
				t.Fatalf("immutable fields changed: %+v", e)
			}
		})
	}

	for _, field := range []string{"id", "user_id", "payor", "expense_ids", ""} {
		if _, err := ParseExpenseUpdate(field, "x"); !errors.Is(err, ErrUnknownField) {
			t.Errorf("field %q: expected ErrUnknownField, got %v", field, err)
		}
	}
	if _, err := ParseExpenseUpdate("amount", "-3"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount accepted: %v", err)
	}
}

func TestParseUserUpdate(t *testing.T) {
	upd, err := ParseUserUpdate("name", " Ada ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u := NewUser("a@x.io", "old")
	upd.Apply(&u)
	if u.Name != "Ada" || upd.Field() != FieldName {
		t.Fatalf("unexpected user after update: %+v", u)
	}
	for _, field := range []string{"friend_ids", "expense_ids", "id"} {
		if _, err := ParseUserUpdate(field, "x"); !errors.Is(err, ErrUnknownField) {
			t.Errorf("field %q: expected ErrUnknownField, got %v", field, err)
		}
	}
}
