package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"greevil/internal/core"
)

const testSpreadsheet = "sheet-123"

// fakeSheets serves the handful of Sheets v4 endpoints the client uses,
// backed by an in-memory grid.
type fakeSheets struct {
	mu           sync.Mutex
	rows         [][]string
	batchUpdates int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"+testSpreadsheet)
	switch {
	case r.Method == http.MethodGet && path == "":
		writeJSON(w, gsheet.Spreadsheet{Sheets: []*gsheet.Sheet{
			{Properties: &gsheet.SheetProperties{SheetId: 0, Title: "Other"}},
			{Properties: &gsheet.SheetProperties{SheetId: 7, Title: "Expenses"}},
		}})

	case r.Method == http.MethodPost && path == ":batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, q := range req.Requests {
			dr := q.DeleteDimension.Range
			if dr.SheetId != 7 || dr.Dimension != "ROWS" {
				http.Error(w, "unexpected range", http.StatusBadRequest)
				return
			}
			f.rows = append(f.rows[:dr.StartIndex], f.rows[dr.EndIndex:]...)
		}
		f.batchUpdates++
		writeJSON(w, gsheet.BatchUpdateSpreadsheetResponse{})

	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		switch {
		case r.Method == http.MethodGet:
			vr := gsheet.ValueRange{Range: rng}
			for _, row := range f.rows {
				vr.Values = append(vr.Values, []any{row[0]})
			}
			writeJSON(w, vr)

		case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
			rows, err := decodeRows(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			start := len(f.rows) + 1
			f.rows = append(f.rows, rows...)
			writeJSON(w, gsheet.AppendValuesResponse{Updates: &gsheet.UpdateValuesResponse{
				UpdatedRange: fmt.Sprintf("Expenses!A%d:G%d", start, len(f.rows)),
			}})

		case r.Method == http.MethodPut:
			rows, err := decodeRows(r)
			if err != nil || len(rows) != 1 {
				http.Error(w, "bad update", http.StatusBadRequest)
				return
			}
			n, err := rowNumber(rng)
			if err != nil || n > len(f.rows) {
				http.Error(w, "bad range "+rng, http.StatusBadRequest)
				return
			}
			f.rows[n-1] = rows[0]
			writeJSON(w, gsheet.UpdateValuesResponse{UpdatedRange: rng})
		}

	default:
		http.NotFound(w, r)
	}
}

// rowNumber extracts N from "Sheet!AN:GN".
func rowNumber(rng string) (int, error) {
	_, cells, _ := strings.Cut(rng, "!A")
	num, _, _ := strings.Cut(cells, ":")
	return strconv.Atoi(num)
}

func decodeRows(r *http.Request) ([][]string, error) {
	var vr gsheet.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(vr.Values))
	for _, row := range vr.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		out = append(out, cells)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return NewWithService(svc, testSpreadsheet, "Expenses"), fake
}

func expense(id, desc string) core.Expense {
	return core.Expense{
		ID: id, UserID: "a@x.io", Payor: "b@x.io",
		Amount: decimal.RequireFromString("9.90"), Date: core.NewDate(2024, 4, 1), Description: desc,
	}
}

func TestUpsertAppendsThenUpdates(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if ref, err := c.Upsert(ctx, expense("e1", "lunch")); err != nil || ref == "" {
		t.Fatalf("first upsert = %q, %v", ref, err)
	}
	if _, err := c.Upsert(ctx, expense("e2", "bus")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	ref, err := c.Upsert(ctx, expense("e1", "brunch"))
	if err != nil {
		t.Fatalf("update upsert: %v", err)
	}
	if ref != "Expenses!A2:G2" {
		t.Errorf("update ref = %q", ref)
	}

	want := [][]string{
		{"ID", "Date", "Amount", "Payee", "Payor", "Description", "Comments"},
		{"e1", "2024-04-01", "9.9", "a@x.io", "b@x.io", "brunch", ""},
		{"e2", "2024-04-01", "9.9", "a@x.io", "b@x.io", "bus", ""},
	}
	if len(fake.rows) != len(want) {
		t.Fatalf("rows = %v", fake.rows)
	}
	for i := range want {
		if strings.Join(fake.rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i+1, fake.rows[i], want[i])
		}
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := c.Upsert(ctx, expense(id, id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Delete(ctx, "e2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.rows) != 3 || fake.rows[1][0] != "e1" || fake.rows[2][0] != "e3" {
		t.Fatalf("rows after delete = %v", fake.rows)
	}

	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if err := c.Delete(ctx, "ID"); err != nil {
		t.Fatalf("delete header id: %v", err)
	}
	if fake.batchUpdates != 1 {
		t.Fatalf("batch updates = %d, want 1", fake.batchUpdates)
	}

	ids, err := c.ExportedIDs(ctx)
	if err != nil {
		t.Fatalf("exported ids: %v", err)
	}
	if strings.Join(ids, ",") != "e1,e3" {
		t.Fatalf("exported ids = %v, want [e1 e3]", ids)
	}
}

func TestUpsertRejectsInvalidExpense(t *testing.T) {
	c, fake := newTestClient(t)
	bad := expense("e1", "x")
	bad.Amount = decimal.NewFromInt(-1)
	if _, err := c.Upsert(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if len(fake.rows) != 0 {
		t.Fatal("invalid expense reached the sheet")
	}
}

func TestNewRequiresConfiguration(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); err == nil {
		t.Error("expected error without spreadsheet id")
	}
	if _, err := New(ctx, Config{SpreadsheetID: "x"}); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := New(ctx, Config{SpreadsheetID: "x", CredentialsFile: t.TempDir() + "/missing.json"}); err == nil {
		t.Error("expected error for unreadable credentials file")
	}
}
