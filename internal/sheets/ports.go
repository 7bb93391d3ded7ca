// Package sheets declares the outbound port used to mirror expenses into a
// spreadsheet.
package sheets

import (
	"context"

	"greevil/internal/core"
)

// Header is the column layout of the export sheet.
var Header = []string{"ID", "Date", "Amount", "Payee", "Payor", "Description", "Comments"}

// ExpenseExporter keeps one row per expense, keyed by expense id.
type ExpenseExporter interface {
	// Upsert writes the expense row, replacing an existing row with the same id.
	Upsert(ctx context.Context, e core.Expense) (rowRef string, err error)
	// Delete removes the row for id; a missing row is not an error.
	Delete(ctx context.Context, id string) error
	// ExportedIDs lists the expense ids that currently have a row.
	ExportedIDs(ctx context.Context) ([]string, error)
}

// Row renders an expense in Header order.
func Row(e core.Expense) []string {
	return []string{e.ID, e.Date.String(), e.Amount.String(), e.UserID, e.Payor, e.Description, e.Comments}
}
