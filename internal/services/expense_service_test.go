package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"greevil/internal/amqp"
	"greevil/internal/core"
	"greevil/internal/kv/memkv"
	"greevil/internal/repository"
	"greevil/internal/repository/memory"
	"greevil/internal/repository/networked"
	"greevil/internal/stats"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// countingRepo counts expense reads.
type countingRepo struct {
	repository.Repository
	reads atomic.Int64
}

func (r *countingRepo) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	r.reads.Add(1)
	return r.Repository.GetExpense(ctx, id)
}

// pausingRepo blocks the first armed GetUser after it has read the user,
// until release is closed.
type pausingRepo struct {
	repository.Repository
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (r *pausingRepo) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := r.Repository.GetUser(ctx, id)
	if r.armed.CompareAndSwap(true, false) {
		close(r.paused)
		<-r.release
	}
	return u, err
}

var march2 = stats.Aggregator{Now: func() time.Time { return time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC) }}

func newService(t *testing.T, repo repository.Repository, events EventPublisher) *ExpenseService {
	t.Helper()
	s := NewExpenseService(repo, Options{Events: events, Aggregator: march2, ReportCacheSize: 16, ReportCacheTTL: time.Minute})
	for _, id := range []string{"a@x.io", "b@x.io"} {
		if err := s.RegisterUser(context.Background(), id, id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	return s
}

func mustExpense(t *testing.T, payee, payor string, amount int64, date string) core.Expense {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatal(err)
	}
	e, err := core.NewExpense(payee, payor, decimal.NewFromInt(amount), d, "", "")
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExpenseLifecyclePublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	s := newService(t, memory.New(), pub)
	ctx := context.Background()

	e := mustExpense(t, "a@x.io", "b@x.io", 10, "2024-03-01")
	id, err := s.AddExpense(ctx, e)
	if err != nil || id != e.ID {
		t.Fatalf("add: id=%q err=%v", id, err)
	}
	if _, err := s.UpdateExpense(ctx, id, core.SetExpenseDescription("dinner")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []amqp.EventType{amqp.ExpenseAdded, amqp.ExpenseUpdated, amqp.ExpenseDeleted}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if pub.events[1].Description != "dinner" {
		t.Errorf("update event carries stale data: %+v", pub.events[1])
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	s := newService(t, memory.New(), &recordingPublisher{err: errors.New("broker down")})
	if _, err := s.AddExpense(context.Background(), mustExpense(t, "a@x.io", "a@x.io", 1, "2024-03-01")); err != nil {
		t.Fatalf("add should succeed without the broker: %v", err)
	}

	s = newService(t, memory.New(), nil)
	if _, err := s.AddExpense(context.Background(), mustExpense(t, "a@x.io", "a@x.io", 1, "2024-03-01")); err != nil {
		t.Fatalf("add should succeed without a publisher: %v", err)
	}
}

func TestFailedAddPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	s := newService(t, memory.New(), pub)
	_, err := s.AddExpense(context.Background(), mustExpense(t, "a@x.io", "ghost@x.io", 1, "2024-03-01"))
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(pub.types()) != 0 {
		t.Fatalf("event published for a failed add")
	}
}

func TestStatsCachedAndInvalidated(t *testing.T) {
	repo := &countingRepo{Repository: memory.New()}
	s := newService(t, repo, nil)
	ctx := context.Background()

	if _, err := s.AddExpense(ctx, mustExpense(t, "b@x.io", "a@x.io", 10, "2024-03-01")); err != nil {
		t.Fatal(err)
	}
	r, err := s.Stats(ctx, "b@x.io")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !r.FriendsAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("friends_amount = %s", r.FriendsAmount)
	}
	reads := repo.reads.Load()
	if _, err := s.Stats(ctx, "b@x.io"); err != nil {
		t.Fatal(err)
	}
	if repo.reads.Load() != reads {
		t.Fatalf("second stats call should be served from cache")
	}

	// a new expense paid by a must refresh both participants' reports
	if _, err := s.AddExpense(ctx, mustExpense(t, "b@x.io", "a@x.io", 5, "2024-03-02")); err != nil {
		t.Fatal(err)
	}
	r, _ = s.Stats(ctx, "b@x.io")
	if !r.FriendsAmount.Equal(decimal.NewFromInt(15)) || !r.BarChart[3].Equal(decimal.NewFromInt(15)) {
		t.Fatalf("stale report after add: %+v", r)
	}
	ra, _ := s.Stats(ctx, "a@x.io")
	if !ra.OwedAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("owed_amount for payor = %s, want 15", ra.OwedAmount)
	}
}

func TestStatsUnknownUser(t *testing.T) {
	s := newService(t, memory.New(), nil)
	if _, err := s.Stats(context.Background(), "nobody@x.io"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserExpensesSkipsDanglingReferences(t *testing.T) {
	store := memkv.New()
	repo := networked.New(store, "", "")
	s := newService(t, repo, nil)
	ctx := context.Background()

	keep := mustExpense(t, "a@x.io", "a@x.io", 3, "2024-03-01")
	gone := mustExpense(t, "a@x.io", "a@x.io", 4, "2024-03-01")
	for _, e := range []core.Expense{keep, gone} {
		if _, err := s.AddExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	// simulate an interrupted delete that removed the record but not the link
	if err := store.Delete(ctx, networked.DefaultExpenseTable, gone.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.UserExpenses(ctx, "a@x.io")
	if err != nil {
		t.Fatalf("user expenses: %v", err)
	}
	if len(got) != 1 || got[0].ID != keep.ID {
		t.Fatalf("expected only %s, got %+v", keep.ID, got)
	}
}

func TestUserExpensesManyConcurrentReads(t *testing.T) {
	repo := &countingRepo{Repository: memory.New()}
	s := newService(t, repo, nil)
	ctx := context.Background()

	const n = 40
	for i := 0; i < n; i++ {
		if _, err := s.AddExpense(ctx, mustExpense(t, "a@x.io", "b@x.io", int64(i), "2024-01-01")); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.UserExpenses(ctx, "b@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != n {
		t.Fatalf("loaded %d expenses, want %d", len(got), n)
	}
	u, _ := s.GetUser(ctx, "b@x.io")
	for i, e := range got {
		if e.ID != u.ExpenseIDs[i] {
			t.Fatalf("expenses out of link order at %d", i)
		}
	}
}

func TestUpdateUserReturnsFreshUser(t *testing.T) {
	s := newService(t, memory.New(), nil)
	u, err := s.UpdateUser(context.Background(), "a@x.io", core.SetUserName("Alice"))
	if err != nil || u.Name != "Alice" {
		t.Fatalf("update user: %+v %v", u, err)
	}
	if err := s.AddFriend(context.Background(), "a@x.io", "b@x.io"); err != nil {
		t.Fatalf("add friend: %v", err)
	}
}

func TestStatsBuildRacingInvalidationIsNotCached(t *testing.T) {
	repo := &pausingRepo{Repository: memory.New(), paused: make(chan struct{}), release: make(chan struct{})}
	s := newService(t, repo, nil)
	ctx := context.Background()

	repo.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := s.Stats(ctx, "a@x.io")
		done <- err
	}()
	<-repo.paused

	if _, err := s.AddExpense(ctx, mustExpense(t, "a@x.io", "b@x.io", 7, "2024-03-01")); err != nil {
		t.Fatal(err)
	}
	close(repo.release)
	if err := <-done; err != nil {
		t.Fatalf("stats during add: %v", err)
	}

	r, err := s.Stats(ctx, "a@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Expenses) != 1 {
		t.Fatalf("report after completed add has %d expenses, want 1", len(r.Expenses))
	}
}

func TestStatsCacheFollowsTheDate(t *testing.T) {
	now := time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC)
	agg := stats.Aggregator{Now: func() time.Time { return now }}
	s := NewExpenseService(memory.New(), Options{Aggregator: agg, ReportCacheSize: 16, ReportCacheTTL: time.Hour})
	ctx := context.Background()
	if err := s.RegisterUser(ctx, "a@x.io", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddExpense(ctx, mustExpense(t, "a@x.io", "a@x.io", 4, "2024-03-03")); err != nil {
		t.Fatal(err)
	}

	r, err := s.Stats(ctx, "a@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if !r.NewExpenses.IsZero() {
		t.Fatalf("new_expenses on 2024-03-02 = %s, want 0", r.NewExpenses)
	}

	now = now.Add(2 * time.Hour)
	r, err = s.Stats(ctx, "a@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if !r.NewExpenses.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("new_expenses on 2024-03-03 = %s, want 4 (report from the previous day served)", r.NewExpenses)
	}
}
