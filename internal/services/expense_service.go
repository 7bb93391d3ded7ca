// Package services orchestrates repository operations with event publishing
// and cached statistics.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"greevil/internal/amqp"
	"greevil/internal/cache"
	"greevil/internal/core"
	applog "greevil/internal/log"
	"greevil/internal/repository"
	"greevil/internal/stats"
)

// maxConcurrentReads bounds the expense lookups issued for one report.
const maxConcurrentReads = 8

// EventPublisher delivers expense events; *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.ExpenseEvent) error
}

type Options struct {
	// Events may be nil, in which case no events are published.
	Events          EventPublisher
	Aggregator      stats.Aggregator
	ReportCacheSize int
	ReportCacheTTL  time.Duration
}

// ExpenseService is the single entry point used by the HTTP layer.
type ExpenseService struct {
	repo    repository.Repository
	events  EventPublisher
	agg     stats.Aggregator
	reports *cache.LRU[stats.Report]
	flight  singleflight.Group

	// versions counts invalidations per user. A report build stores its
	// result only if the count did not move while it ran.
	mu       sync.Mutex
	versions map[string]uint64
}

func NewExpenseService(repo repository.Repository, opts Options) *ExpenseService {
	return &ExpenseService{
		repo:     repo,
		events:   opts.Events,
		agg:      opts.Aggregator,
		reports:  cache.NewLRU[stats.Report](opts.ReportCacheSize, opts.ReportCacheTTL),
		versions: make(map[string]uint64),
	}
}

// Reports exposes the report cache so the caller can run its janitor.
func (s *ExpenseService) Reports() *cache.LRU[stats.Report] { return s.reports }

func (s *ExpenseService) Backend() string { return s.repo.Name() }

func (s *ExpenseService) GetUser(ctx context.Context, id string) (core.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *ExpenseService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.repo.GetAllUsers(ctx)
}

func (s *ExpenseService) RegisterUser(ctx context.Context, id, name string) error {
	if _, err := s.repo.AddUser(ctx, core.NewUser(id, name)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "User registered", applog.FieldUserID, id)
	return nil
}

func (s *ExpenseService) AddFriend(ctx context.Context, userID, friendID string) error {
	if err := s.repo.AddFriend(ctx, userID, friendID); err != nil {
		return err
	}
	s.invalidate(userID, friendID)
	return nil
}

func (s *ExpenseService) UpdateUser(ctx context.Context, id string, update core.UserUpdate) (core.User, error) {
	if err := s.repo.UpdateUser(ctx, id, update); err != nil {
		return core.User{}, err
	}
	s.invalidate(id)
	return s.repo.GetUser(ctx, id)
}

func (s *ExpenseService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// AddExpense stores e and announces it. Publishing is best-effort.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.Expense) (string, error) {
	if err := s.repo.AddExpense(ctx, e); err != nil {
		return "", err
	}
	s.invalidate(e.Participants()...)
	slog.InfoContext(ctx, "Expense added", applog.NewFields().
		WithExpense(e.ID, e.UserID, e.Payor).
		WithOperation(applog.OpCreate).ToSlice()...)
	s.publish(ctx, amqp.ExpenseAdded, e)
	return e.ID, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, update core.ExpenseUpdate) (core.Expense, error) {
	e, err := s.repo.UpdateExpense(ctx, id, update)
	if err != nil {
		return core.Expense{}, err
	}
	s.invalidate(e.Participants()...)
	s.publish(ctx, amqp.ExpenseUpdated, e)
	return e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidate(e.Participants()...)
	slog.InfoContext(ctx, "Expense deleted", applog.NewFields().
		WithExpense(e.ID, e.UserID, e.Payor).
		WithOperation(applog.OpDelete).ToSlice()...)
	s.publish(ctx, amqp.ExpenseDeleted, e)
	return nil
}

// UserExpenses loads every expense linked to the user. Ids whose record is
// gone are skipped: they are the residue of an interrupted delete.
func (s *ExpenseService) UserExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := make([]core.Expense, len(u.ExpenseIDs))
	present := make([]bool, len(u.ExpenseIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, id := range u.ExpenseIDs {
		g.Go(func() error {
			e, err := s.repo.GetExpense(gctx, id)
			if errors.Is(err, core.ErrExpenseNotFound) {
				slog.WarnContext(gctx, "Skipping dangling expense reference",
					applog.FieldUserID, userID, applog.FieldExpenseID, id)
				return nil
			}
			if err != nil {
				return err
			}
			found[i], present[i] = e, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load expenses of %s: %w", userID, err)
	}

	out := make([]core.Expense, 0, len(found))
	for i, e := range found {
		if present[i] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats returns the user's report, served from cache while fresh. Concurrent
// requests for the same user share one computation. Reports are cached per
// day since the daily and monthly totals depend on the current date.
func (s *ExpenseService) Stats(ctx context.Context, userID string) (stats.Report, error) {
	key := reportKey(userID, s.agg.Today())
	if r, ok := s.reports.Get(key); ok {
		slog.DebugContext(ctx, "Report served from cache", applog.FieldUserID, userID, applog.FieldCacheHit, true)
		return r, nil
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		version := s.version(userID)
		expenses, err := s.UserExpenses(ctx, userID)
		if err != nil {
			return stats.Report{}, err
		}
		r := s.agg.Compute(userID, expenses)
		s.storeReport(userID, key, version, r)
		return r, nil
	})
	if err != nil {
		return stats.Report{}, err
	}
	return v.(stats.Report), nil
}

func reportKey(userID string, day core.Date) string {
	return userID + "|" + day.String()
}

func (s *ExpenseService) version(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[userID]
}

// storeReport caches r unless the user was invalidated after version was read.
func (s *ExpenseService) storeReport(userID, key string, version uint64, r stats.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[userID] != version {
		slog.Debug("Discarding report built before invalidation", applog.FieldUserID, userID)
		return
	}
	s.reports.Set(key, r)
}

func (s *ExpenseService) invalidate(userIDs ...string) {
	today := s.agg.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		s.versions[id]++
		key := reportKey(id, today)
		s.reports.Delete(key)
		s.flight.Forget(key)
	}
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, e core.Expense) {
	if s.events == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping expense event", applog.FieldEventType, t)
		return
	}
	if err := s.events.Publish(ctx, amqp.NewExpenseEvent(t, e)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			applog.FieldEventType, t,
			applog.FieldExpenseID, e.ID,
			applog.FieldError, err)
	}
}
