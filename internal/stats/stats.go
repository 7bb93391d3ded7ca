// Package stats derives the dashboard figures for one user from their expenses.
package stats

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"greevil/internal/core"
)

// Report is the statistics view of a single user's expenses.
type Report struct {
	Expenses        []core.Expense             `json:"-"`
	AreaChart       map[string]decimal.Decimal `json:"area_chart"` // by date, current year only
	BarChart        map[int]decimal.Decimal    `json:"bar_chart"`  // by month number, years conflated
	PieChart        map[string]decimal.Decimal `json:"pie_chart"`  // by payor, paid for the subject
	NewExpenses     decimal.Decimal            `json:"new_expenses"`
	MonthlyExpenses decimal.Decimal            `json:"monthly_expenses"`
	FriendsAmount   decimal.Decimal            `json:"friends_amount"`
	OwedAmount      decimal.Decimal            `json:"owed_amount"`
}

// MarshalJSON adds the expense list in its wire form under exp_list.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	list := make([]map[string]any, 0, len(r.Expenses))
	for _, e := range r.Expenses {
		list = append(list, e.ToMap())
	}
	return json.Marshal(struct {
		ExpList []map[string]any `json:"exp_list"`
		plain
	}{list, plain(r)})
}

// Aggregator computes reports relative to the current date.
type Aggregator struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Today is the date reports are computed against.
func (a Aggregator) Today() core.Date {
	if a.Now == nil {
		return core.Today()
	}
	return core.DateOf(a.Now())
}

// Compute builds the report for subject. An empty input yields empty charts
// and zero totals.
func (a Aggregator) Compute(subject string, expenses []core.Expense) Report {
	today := a.Today()
	r := Report{
		Expenses:  slices.Clone(expenses),
		AreaChart: map[string]decimal.Decimal{},
		BarChart:  map[int]decimal.Decimal{},
		PieChart:  map[string]decimal.Decimal{},
	}
	if r.Expenses == nil {
		r.Expenses = []core.Expense{}
	}
	slices.SortStableFunc(r.Expenses, func(x, y core.Expense) int {
		return x.Date.Compare(y.Date.Time)
	})

	for _, e := range r.Expenses {
		sameYear := e.Date.Year() == today.Year()
		sameMonth := sameYear && e.Date.Month() == today.Month()

		if sameYear {
			key := e.Date.String()
			r.AreaChart[key] = r.AreaChart[key].Add(e.Amount)
		}
		r.BarChart[e.Date.Month()] = r.BarChart[e.Date.Month()].Add(e.Amount)

		if sameMonth {
			r.MonthlyExpenses = r.MonthlyExpenses.Add(e.Amount)
		}
		if e.Date.Equal(today) {
			r.NewExpenses = r.NewExpenses.Add(e.Amount)
		}

		switch {
		case e.UserID == subject && e.Payor != subject:
			r.FriendsAmount = r.FriendsAmount.Add(e.Amount)
			r.PieChart[e.Payor] = r.PieChart[e.Payor].Add(e.Amount)
		case e.Payor == subject && e.UserID != subject:
			r.OwedAmount = r.OwedAmount.Add(e.Amount)
		}
	}
	return r
}
