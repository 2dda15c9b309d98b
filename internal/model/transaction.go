package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one entry of a provider feed.
type Transaction struct {
	Identifier       string // unique within a journal
	Date             time.Time
	Description      string
	Amount           decimal.Decimal // negative = debit, positive = credit
	CounterpartyHint string          // free-form, e.g. merchant name from the provider
	CounterpartyID   string          // optional; overridden by a remembered hint match
}
