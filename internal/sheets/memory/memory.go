// Package memory is an in-process ExpenseExporter, used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"greevil/internal/core"
	"greevil/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.ExpenseExporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Upsert(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	row := sheets.Row(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(e.ID); i >= 0 {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		s.rows = slices.Delete(s.rows, i, i+1)
	}
	return nil
}

func (s *Store) ExportedIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.rows))
	for i, r := range s.rows {
		ids[i] = r[0]
	}
	return ids, nil
}

// Rows returns a copy of the exported rows in sheet order.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = slices.Clone(r)
	}
	return out
}

func (s *Store) index(id string) int {
	for i, r := range s.rows {
		if r[0] == id {
			return i
		}
	}
	return -1
}
