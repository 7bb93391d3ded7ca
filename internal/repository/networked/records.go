package networked

import (
	"github.com/shopspring/decimal"

	"greevil/internal/core"
	"greevil/internal/kv"
)

// User record: {CustomerId, Name, Expenses, Friends}
const (
	attrCustomerID = "CustomerId"
	attrName       = "Name"
	attrExpenses   = "Expenses"
	attrFriends    = "Friends"
)

// Expense record: {ExpenseId, Amount, Date, Description, Comments, For, By}
const (
	attrExpenseID   = "ExpenseId"
	attrAmount      = "Amount"
	attrDate        = "Date"
	attrDescription = "Description"
	attrComments    = "Comments"
	attrFor         = "For"
	attrBy          = "By"
)

func userToItem(u core.User) kv.Item {
	expenses := u.ExpenseIDs
	if expenses == nil {
		expenses = []string{}
	}
	friends := u.FriendIDs
	if friends == nil {
		friends = []string{}
	}
	return kv.Item{
		attrCustomerID: u.ID,
		attrName:       u.Name,
		attrExpenses:   expenses,
		attrFriends:    friends,
	}
}

func itemToUser(it kv.Item) (core.User, error) {
	var (
		u   core.User
		err error
	)
	if u.ID, err = it.String(attrCustomerID); err != nil {
		return core.User{}, err
	}
	if u.Name, err = it.String(attrName); err != nil {
		return core.User{}, err
	}
	if u.ExpenseIDs, err = it.Strings(attrExpenses); err != nil {
		return core.User{}, err
	}
	if u.FriendIDs, err = it.Strings(attrFriends); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		return core.User{}, kv.ErrMalformed
	}
	return u, nil
}

func expenseToItem(e core.Expense) kv.Item {
	return kv.Item{
		attrExpenseID:   e.ID,
		attrAmount:      e.Amount.String(),
		attrDate:        e.Date.String(),
		attrDescription: e.Description,
		attrComments:    e.Comments,
		attrFor:         e.UserID,
		attrBy:          e.Payor,
	}
}

func itemToExpense(it kv.Item) (core.Expense, error) {
	var (
		e   core.Expense
		err error
	)
	fields := []struct {
		attr string
		dst  *string
	}{
		{attrExpenseID, &e.ID},
		{attrDescription, &e.Description},
		{attrComments, &e.Comments},
		{attrFor, &e.UserID},
		{attrBy, &e.Payor},
	}
	for _, f := range fields {
		if *f.dst, err = it.String(f.attr); err != nil {
			return core.Expense{}, err
		}
	}

	amount, err := it.String(attrAmount)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, kv.ErrMalformed
	}
	date, err := it.String(attrDate)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, kv.ErrMalformed
	}
	if e.ID == "" || e.UserID == "" || e.Payor == "" {
		return core.Expense{}, kv.ErrMalformed
	}
	return e, nil
}
