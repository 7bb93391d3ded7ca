package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"greevil/internal/amqp"
	"greevil/internal/core"
	"greevil/internal/repository/memory"
	sheetsmem "greevil/internal/sheets/memory"
)

type failingExporter struct{ *sheetsmem.Store }

func (failingExporter) Upsert(context.Context, core.Expense) (string, error) {
	return "", errors.New("quota exceeded")
}

func setup(t *testing.T) (*memory.Repository, core.Expense) {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	for _, id := range []string{"a@x.io", "b@x.io"} {
		if _, err := repo.AddUser(ctx, core.NewUser(id, id)); err != nil {
			t.Fatal(err)
		}
	}
	e, err := core.NewExpense("a@x.io", "b@x.io", decimal.NewFromInt(20), core.NewDate(2024, 5, 5), "tickets", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AddExpense(ctx, e); err != nil {
		t.Fatal(err)
	}
	return repo, e
}

func TestHandleEvent(t *testing.T) {
	repo, e := setup(t)
	sheet := sheetsmem.New()
	w := NewExportWorker(repo, sheet)
	ctx := context.Background()

	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseAdded, e)); err != nil {
		t.Fatalf("added: %v", err)
	}
	if _, err := repo.UpdateExpense(ctx, e.ID, core.SetExpenseDescription("concert")); err != nil {
		t.Fatal(err)
	}
	// the event payload is stale; the row must reflect the repository
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseUpdated, e)); err != nil {
		t.Fatalf("updated: %v", err)
	}
	rows := sheet.Rows()
	if len(rows) != 1 || rows[0][5] != "concert" {
		t.Fatalf("rows = %v", rows)
	}

	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseDeleted, e)); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Fatalf("row not removed")
	}
}

func TestHandleEventForVanishedExpense(t *testing.T) {
	repo, e := setup(t)
	sheet := sheetsmem.New()
	w := NewExportWorker(repo, sheet)
	ctx := context.Background()

	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseAdded, e)); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseUpdated, e)); err != nil {
		t.Fatalf("update for deleted expense: %v", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Fatalf("row for deleted expense kept")
	}
}

func TestHandleEventExporterFailure(t *testing.T) {
	repo, e := setup(t)
	w := NewExportWorker(repo, failingExporter{sheetsmem.New()})
	if err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseAdded, e)); err == nil {
		t.Fatal("exporter failure must be returned so the message is requeued")
	}
	if err := w.HandleEvent(context.Background(), &amqp.ExpenseEvent{Type: "expense.unknown", ExpenseID: e.ID}); err == nil {
		t.Fatal("unknown type should fail")
	}
}

func TestReconcileExportsEachExpenseOnce(t *testing.T) {
	repo, e := setup(t)
	ctx := context.Background()
	self, _ := core.NewExpense("b@x.io", "", decimal.NewFromInt(1), core.NewDate(2024, 5, 6), "", "")
	if err := repo.AddExpense(ctx, self); err != nil {
		t.Fatal(err)
	}

	sheet := sheetsmem.New()
	if err := NewExportWorker(repo, sheet).Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	rows := sheet.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want %s and %s once each", rows, e.ID, self.ID)
	}
}

func TestReconcileRemovesRowsOfDeletedExpenses(t *testing.T) {
	repo, e := setup(t)
	ctx := context.Background()
	sheet := sheetsmem.New()
	w := NewExportWorker(repo, sheet)
	if err := w.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	// deleted while no event reached the worker
	if err := repo.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	// present in the repository but linked to nobody: the row stays
	orphan, _ := core.NewExpense("a@x.io", "", decimal.NewFromInt(2), core.NewDate(2024, 5, 7), "", "")
	if _, err := sheet.Upsert(ctx, orphan); err != nil {
		t.Fatal(err)
	}
	kept := &orphanRepo{Repository: repo, orphan: orphan}

	if err := NewExportWorker(kept, sheet).Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	rows := sheet.Rows()
	if len(rows) != 1 || rows[0][0] != orphan.ID {
		t.Fatalf("rows = %v, want only %s", rows, orphan.ID)
	}
}

// orphanRepo reports one extra expense that no user references.
type orphanRepo struct {
	*memory.Repository
	orphan core.Expense
}

func (r *orphanRepo) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	if id == r.orphan.ID {
		return r.orphan, nil
	}
	return r.Repository.GetExpense(ctx, id)
}

func TestReconcileReportsFailures(t *testing.T) {
	repo, _ := setup(t)
	if err := NewExportWorker(repo, failingExporter{sheetsmem.New()}).Reconcile(context.Background()); err == nil {
		t.Fatal("expected reconcile error")
	}
}

func TestReconcilerLifecycle(t *testing.T) {
	repo, _ := setup(t)
	sheet := sheetsmem.New()
	r := NewReconciler(NewExportWorker(repo, sheet), time.Hour)
	ctx := context.Background()

	if r.IsRunning() {
		t.Fatal("running before Start")
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sheet.Rows()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sheet.Rows()) != 1 {
		t.Fatalf("startup reconcile did not run")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.IsRunning() {
		t.Fatal("still running after Stop")
	}
}
