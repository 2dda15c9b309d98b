package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is an online bank account as reported by the provider.
type Account struct {
	ID         string
	Name       string
	Balance    decimal.Decimal // true current balance
	JournalIDs []string
	LastSync   time.Time // zero = never synced
}
