// Package memory is the in-process repository. It keeps no state across
// restarts and serves as the reference behaviour for the other backends.
package memory

import (
	"context"
	"sort"
	"sync"

	"greevil/internal/core"
	"greevil/internal/repository"
)

type Repository struct {
	mu       sync.Mutex
	users    map[string]core.User
	expenses map[string]core.Expense
}

var _ repository.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		users:    make(map[string]core.User),
		expenses: make(map[string]core.Expense),
	}
}

func (r *Repository) Name() string { return "In-Memory" }

func (r *Repository) GetUser(_ context.Context, id string) (core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return core.User{}, core.UserNotFound(id)
	}
	return u.Clone(), nil
}

func (r *Repository) GetAllUsers(_ context.Context) ([]core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) AddUser(_ context.Context, user core.User) (string, error) {
	if user.ID == "" {
		return "", core.ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; exists {
		return "", core.UserExists(user.ID)
	}
	r.users[user.ID] = core.NewUser(user.ID, user.Name)
	return user.ID, nil
}

func (r *Repository) AddFriend(_ context.Context, userID, friendID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	friend, ok := r.users[friendID]
	if !ok {
		return core.UserNotFound(friendID)
	}
	user, ok := r.users[userID]
	if !ok {
		return core.UserNotFound(userID)
	}
	if userID == friendID {
		return nil
	}
	user.FriendIDs = core.AppendUnique(user.FriendIDs, friendID)
	friend.FriendIDs = core.AppendUnique(friend.FriendIDs, userID)
	r.users[userID] = user
	r.users[friendID] = friend
	return nil
}

func (r *Repository) UpdateUser(_ context.Context, id string, update core.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return core.UserNotFound(id)
	}
	update.Apply(&u)
	r.users[id] = u
	return nil
}

func (r *Repository) GetExpense(_ context.Context, id string) (core.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return core.Expense{}, core.ExpenseNotFound(id)
	}
	return e, nil
}

// AddExpense checks both participants before storing anything, then stores
// the record and links it (payor only when different from the payee).
func (r *Repository) AddExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	payee, ok := r.users[e.UserID]
	if !ok {
		return core.UserNotFound(e.UserID)
	}
	payor, ok := r.users[e.Payor]
	if !ok {
		return core.UserNotFound(e.Payor)
	}

	r.expenses[e.ID] = e
	payee.ExpenseIDs = core.AppendUnique(payee.ExpenseIDs, e.ID)
	r.users[e.UserID] = payee
	if !e.SelfPaid() {
		payor.ExpenseIDs = core.AppendUnique(payor.ExpenseIDs, e.ID)
		r.users[e.Payor] = payor
	}
	return nil
}

func (r *Repository) UpdateExpense(_ context.Context, id string, update core.ExpenseUpdate) (core.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return core.Expense{}, core.ExpenseNotFound(id)
	}
	update.Apply(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	r.expenses[id] = e
	return e, nil
}

// DeleteExpense unlinks the expense from its participants, then removes the record.
func (r *Repository) DeleteExpense(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return core.ExpenseNotFound(id)
	}
	payee, ok := r.users[e.UserID]
	if !ok {
		return core.UserNotFound(e.UserID)
	}
	payor, ok := r.users[e.Payor]
	if !ok {
		return core.UserNotFound(e.Payor)
	}

	payee.ExpenseIDs = core.RemoveID(payee.ExpenseIDs, id)
	r.users[e.UserID] = payee
	if !e.SelfPaid() {
		payor.ExpenseIDs = core.RemoveID(payor.ExpenseIDs, id)
		r.users[e.Payor] = payor
	}
	delete(r.expenses, id)
	return nil
}
