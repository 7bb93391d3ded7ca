// Package repotest holds the behaviour suite every repository backend must pass.
package repotest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"greevil/internal/core"
	"greevil/internal/repository"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) repository.Repository

// Run executes the shared suite against the backend produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, r repository.Repository)
	}{
		{"user round trip", testUserRoundTrip},
		{"duplicate user rejected", testDuplicateUser},
		{"add user ignores relationship fields", testAddUserClearsRelationships},
		{"get all users", testGetAllUsers},
		{"not found propagation", testNotFound},
		{"friendship symmetry", testFriendshipSymmetry},
		{"friendship idempotence", testFriendshipIdempotence},
		{"friendship with missing user", testFriendMissingUser},
		{"update user", testUpdateUser},
		{"expense linkage", testExpenseLinkage},
		{"self-paid expense linked once", testSelfPaidLinkage},
		{"add expense with missing participant", testAddExpenseMissingUser},
		{"update expense", testUpdateExpense},
		{"delete removes linkage", testDeleteExpense},
		{"delete self-paid expense", testDeleteSelfPaid},
		{"callers receive copies", testCopies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newRepo(t))
		})
	}
}

func mustAddUser(t *testing.T, r repository.Repository, id string) {
	t.Helper()
	if _, err := r.AddUser(context.Background(), core.NewUser(id, "name of "+id)); err != nil {
		t.Fatalf("add user %s: %v", id, err)
	}
}

func mustGetUser(t *testing.T, r repository.Repository, id string) core.User {
	t.Helper()
	u, err := r.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return u
}

func newExpense(t *testing.T, payee, payor string, amount int64) core.Expense {
	t.Helper()
	e, err := core.NewExpense(payee, payor, decimal.NewFromInt(amount), core.NewDate(2024, 3, 1), "dinner", "")
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	return e
}

func count(ids []string, id string) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}

func testUserRoundTrip(t *testing.T, r repository.Repository) {
	id, err := r.AddUser(context.Background(), core.NewUser("ada@example.com", "Ada"))
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if id != "ada@example.com" {
		t.Fatalf("AddUser returned %q", id)
	}
	u := mustGetUser(t, r, id)
	if u.ID != "ada@example.com" || u.Name != "Ada" {
		t.Fatalf("round trip mismatch: %+v", u)
	}
	if len(u.ExpenseIDs) != 0 || len(u.FriendIDs) != 0 {
		t.Fatalf("new user must have no relationships: %+v", u)
	}
}

func testDuplicateUser(t *testing.T, r repository.Repository) {
	mustAddUser(t, r, "ada@example.com")
	_, err := r.AddUser(context.Background(), core.NewUser("ada@example.com", "Other"))
	if !errors.Is(err, core.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if u := mustGetUser(t, r, "ada@example.com"); u.Name != "name of ada@example.com" {
		t.Fatalf("duplicate add overwrote user: %+v", u)
	}
}

func testAddUserClearsRelationships(t *testing.T, r repository.Repository) {
	u := core.User{ID: "ada@example.com", Name: "Ada", ExpenseIDs: []string{"ghost"}, FriendIDs: []string{"nobody"}}
	if _, err := r.AddUser(context.Background(), u); err != nil {
		t.Fatalf("add user: %v", err)
	}
	got := mustGetUser(t, r, "ada@example.com")
	if len(got.ExpenseIDs) != 0 || len(got.FriendIDs) != 0 {
		t.Fatalf("relationship fields must start empty: %+v", got)
	}
}

func testGetAllUsers(t *testing.T, r repository.Repository) {
	all, err := r.GetAllUsers(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty user list, got %v err=%v", all, err)
	}
	mustAddUser(t, r, "b@example.com")
	mustAddUser(t, r, "a@example.com")
	all, err = r.GetAllUsers(context.Background())
	if err != nil {
		t.Fatalf("get all users: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a@example.com" || all[1].ID != "b@example.com" {
		t.Fatalf("unexpected users: %+v", all)
	}
}

func testNotFound(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	if _, err := r.GetUser(ctx, "nonexistent"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("GetUser: expected ErrUserNotFound, got %v", err)
	}
	if _, err := r.GetExpense(ctx, "nonexistent"); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("GetExpense: expected ErrExpenseNotFound, got %v", err)
	}
	if err := r.UpdateUser(ctx, "nonexistent", core.SetUserName("x")); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("UpdateUser: expected ErrUserNotFound, got %v", err)
	}
	if _, err := r.UpdateExpense(ctx, "nonexistent", core.SetExpenseComments("x")); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("UpdateExpense: expected ErrExpenseNotFound, got %v", err)
	}
	if err := r.DeleteExpense(ctx, "nonexistent"); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("DeleteExpense: expected ErrExpenseNotFound, got %v", err)
	}
}

func testFriendshipSymmetry(t *testing.T, r repository.Repository) {
	mustAddUser(t, r, "a@example.com")
	mustAddUser(t, r, "b@example.com")
	if err := r.AddFriend(context.Background(), "a@example.com", "b@example.com"); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	a := mustGetUser(t, r, "a@example.com")
	b := mustGetUser(t, r, "b@example.com")
	if !a.HasFriend("b@example.com") || !b.HasFriend("a@example.com") {
		t.Fatalf("friendship not symmetric: a=%v b=%v", a.FriendIDs, b.FriendIDs)
	}
}

func testFriendshipIdempotence(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "a@example.com")
	mustAddUser(t, r, "b@example.com")
	for i := 0; i < 2; i++ {
		if err := r.AddFriend(ctx, "a@example.com", "b@example.com"); err != nil {
			t.Fatalf("add friend #%d: %v", i, err)
		}
	}
	// reversed direction is the same friendship
	if err := r.AddFriend(ctx, "b@example.com", "a@example.com"); err != nil {
		t.Fatalf("add friend reversed: %v", err)
	}
	a := mustGetUser(t, r, "a@example.com")
	b := mustGetUser(t, r, "b@example.com")
	if !slices.Equal(a.FriendIDs, []string{"b@example.com"}) || !slices.Equal(b.FriendIDs, []string{"a@example.com"}) {
		t.Fatalf("friend lists duplicated: a=%v b=%v", a.FriendIDs, b.FriendIDs)
	}
}

func testFriendMissingUser(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "a@example.com")
	if err := r.AddFriend(ctx, "a@example.com", "ghost@example.com"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := r.AddFriend(ctx, "ghost@example.com", "a@example.com"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if a := mustGetUser(t, r, "a@example.com"); len(a.FriendIDs) != 0 {
		t.Fatalf("failed add friend left a one-sided link: %v", a.FriendIDs)
	}
}

func testUpdateUser(t *testing.T, r repository.Repository) {
	mustAddUser(t, r, "a@example.com")
	if err := r.UpdateUser(context.Background(), "a@example.com", core.SetUserName("Ada L.")); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if u := mustGetUser(t, r, "a@example.com"); u.Name != "Ada L." {
		t.Fatalf("name not updated: %+v", u)
	}
}

func testExpenseLinkage(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "payee@example.com")
	mustAddUser(t, r, "payor@example.com")
	e := newExpense(t, "payee@example.com", "payor@example.com", 10)
	if err := r.AddExpense(ctx, e); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	payee := mustGetUser(t, r, "payee@example.com")
	payor := mustGetUser(t, r, "payor@example.com")
	if count(payee.ExpenseIDs, e.ID) != 1 || count(payor.ExpenseIDs, e.ID) != 1 {
		t.Fatalf("expense not linked once to each participant: payee=%v payor=%v", payee.ExpenseIDs, payor.ExpenseIDs)
	}
	got, err := r.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if got.ID != e.ID || got.UserID != e.UserID || got.Payor != e.Payor || !got.Amount.Equal(e.Amount) || !got.Date.Equal(e.Date) || got.Description != "dinner" {
		t.Fatalf("expense round trip mismatch: got %+v want %+v", got, e)
	}
}

func testSelfPaidLinkage(t *testing.T, r repository.Repository) {
	mustAddUser(t, r, "solo@example.com")
	e := newExpense(t, "solo@example.com", "solo@example.com", 7)
	if err := r.AddExpense(context.Background(), e); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	u := mustGetUser(t, r, "solo@example.com")
	if count(u.ExpenseIDs, e.ID) != 1 {
		t.Fatalf("self-paid expense must appear exactly once, got %v", u.ExpenseIDs)
	}
}

func testAddExpenseMissingUser(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "payee@example.com")
	e := newExpense(t, "payee@example.com", "ghost@example.com", 3)
	if err := r.AddExpense(ctx, e); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := r.GetExpense(ctx, e.ID); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("expense must not be stored when a participant is missing, got %v", err)
	}
	if u := mustGetUser(t, r, "payee@example.com"); len(u.ExpenseIDs) != 0 {
		t.Fatalf("payee linked to rejected expense: %v", u.ExpenseIDs)
	}
}

func testUpdateExpense(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "a@example.com")
	mustAddUser(t, r, "b@example.com")
	e := newExpense(t, "b@example.com", "a@example.com", 10)
	if err := r.AddExpense(ctx, e); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	updated, err := r.UpdateExpense(ctx, e.ID, core.SetExpenseAmount(decimal.RequireFromString("12.5")))
	if err != nil {
		t.Fatalf("update expense: %v", err)
	}
	if !updated.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("returned expense not updated: %+v", updated)
	}
	got, err := r.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.5")) || got.Description != "dinner" {
		t.Fatalf("stored expense not updated: %+v", got)
	}
}

func testDeleteExpense(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "a@example.com")
	mustAddUser(t, r, "b@example.com")
	keep := newExpense(t, "b@example.com", "a@example.com", 1)
	drop := newExpense(t, "b@example.com", "a@example.com", 2)
	for _, e := range []core.Expense{keep, drop} {
		if err := r.AddExpense(ctx, e); err != nil {
			t.Fatalf("add expense: %v", err)
		}
	}
	if err := r.DeleteExpense(ctx, drop.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	for _, id := range []string{"a@example.com", "b@example.com"} {
		u := mustGetUser(t, r, id)
		if u.HasExpense(drop.ID) {
			t.Fatalf("%s still linked to deleted expense: %v", id, u.ExpenseIDs)
		}
		if !u.HasExpense(keep.ID) {
			t.Fatalf("%s lost unrelated expense: %v", id, u.ExpenseIDs)
		}
	}
	if _, err := r.GetExpense(ctx, drop.ID); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound after delete, got %v", err)
	}
	if err := r.DeleteExpense(ctx, drop.ID); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Fatalf("second delete: expected ErrExpenseNotFound, got %v", err)
	}
}

func testDeleteSelfPaid(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "solo@example.com")
	e := newExpense(t, "solo@example.com", "solo@example.com", 4)
	if err := r.AddExpense(ctx, e); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if err := r.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if u := mustGetUser(t, r, "solo@example.com"); len(u.ExpenseIDs) != 0 {
		t.Fatalf("self-paid expense still linked: %v", u.ExpenseIDs)
	}
}

func testCopies(t *testing.T, r repository.Repository) {
	ctx := context.Background()
	mustAddUser(t, r, "a@example.com")
	mustAddUser(t, r, "b@example.com")
	if err := r.AddFriend(ctx, "a@example.com", "b@example.com"); err != nil {
		t.Fatalf("add friend: %v", err)
	}
	u := mustGetUser(t, r, "a@example.com")
	u.FriendIDs[0] = "tampered"
	u.Name = "tampered"
	again := mustGetUser(t, r, "a@example.com")
	if again.FriendIDs[0] != "b@example.com" || again.Name == "tampered" {
		t.Fatalf("repository state mutated through returned copy: %+v", again)
	}
}
