package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"greevil/internal/core"
	"greevil/internal/repository"
	"greevil/internal/repository/repotest"
)

func TestMemoryRepositoryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Repository { return New() })
}

func TestMemoryAddExpenseRejectsInvalid(t *testing.T) {
	r := New()
	ctx := context.Background()
	if _, err := r.AddUser(ctx, core.NewUser("a@x.io", "A")); err != nil {
		t.Fatalf("add user: %v", err)
	}
	bad := core.Expense{ID: "e1", UserID: "a@x.io", Payor: "a@x.io", Amount: decimal.NewFromInt(-1), Date: core.NewDate(2024, 1, 1)}
	if err := r.AddExpense(ctx, bad); err == nil {
		t.Fatalf("expected validation error for negative amount")
	}
	if _, err := r.AddUser(ctx, core.User{}); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestMemorySelfFriendIsNoop(t *testing.T) {
	r := New()
	ctx := context.Background()
	if _, err := r.AddUser(ctx, core.NewUser("a@x.io", "A")); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := r.AddFriend(ctx, "a@x.io", "a@x.io"); err != nil {
		t.Fatalf("add self friend: %v", err)
	}
	u, _ := r.GetUser(ctx, "a@x.io")
	if len(u.FriendIDs) != 0 {
		t.Fatalf("user befriended themselves: %v", u.FriendIDs)
	}
}
