package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementState represents the lifecycle state of a bank statement.
type StatementState string

const (
	StateDraft     StatementState = "draft"
	StateOpen      StatementState = "open"
	StatePosted    StatementState = "posted"
	StateConfirmed StatementState = "confirmed" // validated by a reviewer
)

// Finalized reports whether lines may no longer be appended without reopening.
func (s StatementState) Finalized() bool {
	return s == StatePosted || s == StateConfirmed
}

// Statement is a bucket of lines for one journal and one bucket key.
type Statement struct {
	ID             string
	JournalID      string
	Name           string    // "BNK1 Statement 2016/01/00001"
	Date           time.Time // bucket key
	EndDate        time.Time // display only; zero for day and none grouping
	BalanceStart   decimal.Decimal
	BalanceEndReal decimal.Decimal
	State          StatementState
}

// Line is a single movement inside a statement.
type Line struct {
	ID               string
	StatementID      string
	JournalID        string
	AccountID        string
	Sequence         int    // insertion order inside the statement
	TransactionID    string // empty for synthetic lines
	Date             time.Time
	Description      string
	Amount           decimal.Decimal
	CounterpartyID   string
	CounterpartyHint string
}

// Synthetic reports whether the line was not produced by a provider transaction.
func (l Line) Synthetic() bool { return l.TransactionID == "" }

// SumLines returns the total amount of lines.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
