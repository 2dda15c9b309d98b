package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// DefaultRegistry returns the journals and accounts of a new project: one
// bank journal fed by one checking account.
func DefaultRegistry(grouping model.GroupingMode) *Service {
	if grouping == "" {
		grouping = model.DefaultGrouping
	}
	journals := []model.Journal{
		{
			ID:       "bank",
			Code:     "BNK1",
			Name:     "Bank",
			Grouping: grouping,
			Rounding: decimal.New(1, -2),
		},
	}
	accts := []model.Account{
		{
			ID:         "checking",
			Name:       "Business Checking",
			Balance:    decimal.Zero,
			JournalIDs: []string{"bank"},
		},
	}
	return NewService(journals, accts)
}
