// Package worker mirrors expenses into the export sheet in response to
// expense events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"greevil/internal/amqp"
	"greevil/internal/core"
	applog "greevil/internal/log"
	"greevil/internal/repository"
	"greevil/internal/sheets"
)

// ExportWorker keeps the export sheet in step with the repository.
type ExportWorker struct {
	repo     repository.Repository
	exporter sheets.ExpenseExporter
}

func NewExportWorker(repo repository.Repository, exporter sheets.ExpenseExporter) *ExportWorker {
	return &ExportWorker{repo: repo, exporter: exporter}
}

// HandleEvent applies one event. Added and updated events re-read the
// expense so the row reflects current state even if events arrive out of
// order; an expense deleted in the meantime has its row removed.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.ExpenseEvent) error {
	slog.DebugContext(ctx, "Processing expense event",
		applog.FieldEventType, event.Type,
		applog.FieldExpenseID, event.ExpenseID)

	switch event.Type {
	case amqp.ExpenseAdded, amqp.ExpenseUpdated:
		e, err := w.repo.GetExpense(ctx, event.ExpenseID)
		if errors.Is(err, core.ErrExpenseNotFound) {
			return w.delete(ctx, event.ExpenseID)
		}
		if err != nil {
			return fmt.Errorf("get expense %s: %w", event.ExpenseID, err)
		}
		return w.export(ctx, e)
	case amqp.ExpenseDeleted:
		return w.delete(ctx, event.ExpenseID)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
}

// Reconcile exports every expense reachable from any user, then removes rows
// whose expense no longer exists. It recovers events missed while the worker
// or broker was down.
func (w *ExportWorker) Reconcile(ctx context.Context) error {
	users, err := w.repo.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	seen := make(map[string]struct{})
	exported, failed := 0, 0
	for _, u := range users {
		for _, id := range u.ExpenseIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if err := ctx.Err(); err != nil {
				return err
			}

			e, err := w.repo.GetExpense(ctx, id)
			if errors.Is(err, core.ErrExpenseNotFound) {
				continue
			}
			if err == nil {
				err = w.export(ctx, e)
			}
			if err != nil {
				slog.ErrorContext(ctx, "Failed to reconcile expense", applog.FieldExpenseID, id, applog.FieldError, err)
				failed++
				continue
			}
			exported++
		}
	}

	removed, pruneFailed, err := w.prune(ctx, seen)
	if err != nil {
		return err
	}
	failed += pruneFailed

	slog.InfoContext(ctx, "Export reconciliation completed",
		"users", len(users),
		"exported", exported,
		"removed", removed,
		"errors", failed)
	if failed > 0 {
		return fmt.Errorf("reconcile: %d expenses failed", failed)
	}
	return nil
}

// prune deletes rows not in seen whose expense the repository no longer
// has. Rows for expenses that still exist are left alone.
func (w *ExportWorker) prune(ctx context.Context, seen map[string]struct{}) (removed, failed int, err error) {
	ids, err := w.exporter.ExportedIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list exported rows: %w", err)
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, failed, err
		}
		_, err := w.repo.GetExpense(ctx, id)
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrExpenseNotFound) {
			err = w.delete(ctx, id)
			if err == nil {
				removed++
				continue
			}
		}
		slog.ErrorContext(ctx, "Failed to prune exported expense", applog.FieldExpenseID, id, applog.FieldError, err)
		failed++
	}
	return removed, failed, nil
}

func (w *ExportWorker) export(ctx context.Context, e core.Expense) error {
	ref, err := w.exporter.Upsert(ctx, e)
	if err != nil {
		return fmt.Errorf("export expense %s: %w", e.ID, err)
	}
	slog.InfoContext(ctx, "Exported expense", applog.FieldExpenseID, e.ID, "row_ref", ref)
	return nil
}

func (w *ExportWorker) delete(ctx context.Context, id string) error {
	if err := w.exporter.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete exported expense %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Removed exported expense", applog.FieldExpenseID, id)
	return nil
}
