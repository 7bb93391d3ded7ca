// Package networked implements the repository on top of a remote key-value
// store that only offers single-item atomic mutations.
//
// Writes that span several items are ordered so that a crash part-way leaves
// extra links rather than lost data:
//
//   - AddExpense writes the expense record first, then links it into each
//     participant with append-if-absent, so a retry never duplicates a link.
//   - DeleteExpense rewrites the participants' expense lists first and deletes
//     the expense record last; an interruption leaves a user pointing at an
//     expense that still exists, never at one that is gone.
//   - AddFriend appends on both users independently. A failure on the second
//     append leaves a one-directional friendship; callers must retry.
//
// List rewrites (DeleteExpense, UpdateUser) are read-modify-write and race
// with concurrent writers on the same user: the last writer wins.
package networked

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"greevil/internal/core"
	"greevil/internal/kv"
	"greevil/internal/repository"
)

const (
	DefaultUserTable    = "greevil-users"
	DefaultExpenseTable = "greevil-expenses"
)

type Repository struct {
	store        kv.Store
	userTable    string
	expenseTable string
}

var _ repository.Repository = (*Repository)(nil)

// New returns a repository using the given tables; empty names fall back to the defaults.
func New(store kv.Store, userTable, expenseTable string) *Repository {
	if userTable == "" {
		userTable = DefaultUserTable
	}
	if expenseTable == "" {
		expenseTable = DefaultExpenseTable
	}
	return &Repository{store: store, userTable: userTable, expenseTable: expenseTable}
}

func (r *Repository) Name() string { return "KeyValue" }

// Close releases the underlying store.
func (r *Repository) Close() error {
	return r.store.Close()
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	it, err := r.store.Get(ctx, r.userTable, id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return core.User{}, core.UserNotFound(id)
	}
	if err != nil {
		return core.User{}, core.BackendError("get user "+id, err)
	}
	u, err := itemToUser(it)
	if err != nil {
		return core.User{}, core.BackendError("decode user "+id, err)
	}
	return u, nil
}

func (r *Repository) GetAllUsers(ctx context.Context) ([]core.User, error) {
	items, err := r.store.Scan(ctx, r.userTable)
	if err != nil {
		return nil, core.BackendError("scan users", err)
	}
	users := make([]core.User, 0, len(items))
	for _, it := range items {
		u, err := itemToUser(it)
		if err != nil {
			return nil, core.BackendError("decode user", err)
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *Repository) AddUser(ctx context.Context, user core.User) (string, error) {
	if user.ID == "" {
		return "", core.ErrEmptyID
	}
	err := r.store.Create(ctx, r.userTable, user.ID, userToItem(core.NewUser(user.ID, user.Name)))
	if errors.Is(err, kv.ErrKeyExists) {
		return "", core.UserExists(user.ID)
	}
	if err != nil {
		return "", core.BackendError("create user "+user.ID, err)
	}
	return user.ID, nil
}

func (r *Repository) AddFriend(ctx context.Context, userID, friendID string) error {
	if _, err := r.GetUser(ctx, friendID); err != nil {
		return err
	}
	if _, err := r.GetUser(ctx, userID); err != nil {
		return err
	}
	if userID == friendID {
		return nil
	}

	if err := r.link(ctx, userID, attrFriends, friendID); err != nil {
		return err
	}
	if err := r.link(ctx, friendID, attrFriends, userID); err != nil {
		slog.WarnContext(ctx, "Friendship left one-directional",
			"user_id", userID, "friend_id", friendID, "error", err)
		return err
	}
	return nil
}

func (r *Repository) UpdateUser(ctx context.Context, id string, update core.UserUpdate) error {
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return err
	}
	update.Apply(&u)
	if err := r.store.Put(ctx, r.userTable, id, userToItem(u)); err != nil {
		return core.BackendError("put user "+id, err)
	}
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	it, err := r.store.Get(ctx, r.expenseTable, id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return core.Expense{}, core.ExpenseNotFound(id)
	}
	if err != nil {
		return core.Expense{}, core.BackendError("get expense "+id, err)
	}
	e, err := itemToExpense(it)
	if err != nil {
		return core.Expense{}, core.BackendError("decode expense "+id, err)
	}
	return e, nil
}

func (r *Repository) AddExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := r.GetUser(ctx, e.UserID); err != nil {
		return err
	}
	if _, err := r.GetUser(ctx, e.Payor); err != nil {
		return err
	}

	// The expense record is the source of truth: write it before any link.
	if err := r.store.Put(ctx, r.expenseTable, e.ID, expenseToItem(e)); err != nil {
		return core.BackendError("put expense "+e.ID, err)
	}
	slog.DebugContext(ctx, "Expense record written", "table", r.expenseTable, "expense_id", e.ID)

	for _, uid := range e.Participants() {
		if err := r.link(ctx, uid, attrExpenses, e.ID); err != nil {
			slog.WarnContext(ctx, "Expense stored but not linked to every participant",
				"expense_id", e.ID, "user_id", uid, "error", err)
			return err
		}
	}
	return nil
}

func (r *Repository) UpdateExpense(ctx context.Context, id string, update core.ExpenseUpdate) (core.Expense, error) {
	e, err := r.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	update.Apply(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := r.store.Put(ctx, r.expenseTable, id, expenseToItem(e)); err != nil {
		return core.Expense{}, core.BackendError("put expense "+id, err)
	}
	return e, nil
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	e, err := r.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	payee, err := r.GetUser(ctx, e.UserID)
	if err != nil {
		return err
	}
	users := []core.User{payee}
	if !e.SelfPaid() {
		payor, err := r.GetUser(ctx, e.Payor)
		if err != nil {
			return err
		}
		users = append(users, payor)
	}

	// Unlink first; the record is deleted only once no user references it.
	for _, u := range users {
		u.ExpenseIDs = core.RemoveID(u.ExpenseIDs, id)
		if err := r.store.Put(ctx, r.userTable, u.ID, userToItem(u)); err != nil {
			return core.BackendError("put user "+u.ID, err)
		}
		slog.DebugContext(ctx, "Expense unlinked", "table", r.userTable, "user_id", u.ID, "expense_id", id)
	}

	err = r.store.Delete(ctx, r.expenseTable, id)
	if errors.Is(err, kv.ErrKeyNotFound) {
		// deleted concurrently; the unlink above already happened
		return nil
	}
	if err != nil {
		return core.BackendError("delete expense "+id, err)
	}
	return nil
}

// link appends value to a user's list attribute with append-if-absent.
func (r *Repository) link(ctx context.Context, userID, attr, value string) error {
	err := r.store.AppendIfAbsent(ctx, r.userTable, userID, attr, value)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return core.UserNotFound(userID)
	}
	if err != nil {
		return core.BackendError("append "+attr+" on user "+userID, err)
	}
	slog.DebugContext(ctx, "Linked", "table", r.userTable, "user_id", userID, "attr", attr, "value", value)
	return nil
}
