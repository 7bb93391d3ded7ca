// Package repository defines the persistence contract for users, friendships
// and expenses. Implementations keep the relationship invariants:
//
//   - friendship is symmetric and set-like on both users;
//   - an expense id is linked into its payee's list, and into its payor's
//     list only when payor and payee differ;
//   - deleting an expense unlinks it from its participants before the record
//     itself is removed.
//
// Failures are reported with the core error kinds (core.ErrUserNotFound,
// core.ErrUserExists, core.ErrExpenseNotFound, core.ErrBackend).
package repository

import (
	"context"

	"greevil/internal/core"
)

type Repository interface {
	// Name identifies the backend in logs.
	Name() string

	GetUser(ctx context.Context, id string) (core.User, error)
	GetAllUsers(ctx context.Context) ([]core.User, error)
	// AddUser stores a user with empty relationship lists and returns its id.
	AddUser(ctx context.Context, user core.User) (string, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	UpdateUser(ctx context.Context, id string, update core.UserUpdate) error

	GetExpense(ctx context.Context, id string) (core.Expense, error)
	AddExpense(ctx context.Context, e core.Expense) error
	UpdateExpense(ctx context.Context, id string, update core.ExpenseUpdate) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}
