package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GroupingMode controls how transactions are bucketed into statements.
type GroupingMode string

const (
	GroupNone      GroupingMode = "none"
	GroupDay       GroupingMode = "day"
	GroupWeek      GroupingMode = "week"
	GroupBimonthly GroupingMode = "bimonthly"
	GroupMonth     GroupingMode = "month"
)

// DefaultGrouping is used when a journal does not specify one.
const DefaultGrouping = GroupMonth

// SourceOnlineSync marks a journal whose statements are fed by the provider.
const SourceOnlineSync = "online_sync"

// ParseGroupingMode accepts the mode names plus a few common aliases.
func ParseGroupingMode(s string) (GroupingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultGrouping, nil
	case "none", "sync":
		return GroupNone, nil
	case "day", "daily":
		return GroupDay, nil
	case "week", "weekly":
		return GroupWeek, nil
	case "bimonthly", "semimonthly":
		return GroupBimonthly, nil
	case "month", "monthly":
		return GroupMonth, nil
	default:
		return "", fmt.Errorf("unknown grouping mode %q", s)
	}
}

// Journal is a bank journal receiving statements.
type Journal struct {
	ID               string
	Code             string // short code used in statement names, e.g. "BNK1"
	Name             string
	Grouping         GroupingMode
	Rounding         decimal.Decimal // currency rounding unit, e.g. 0.01
	StatementsSource string
	LastSyncedAt     time.Time
}

// IsZeroAmount reports whether amount rounds to zero at the journal's
// currency rounding. A zero Rounding falls back to cents.
func (j Journal) IsZeroAmount(amount decimal.Decimal) bool {
	return IsZeroAt(amount, j.Rounding)
}

// IsZeroAt reports whether amount rounds to zero in units of rounding.
func IsZeroAt(amount, rounding decimal.Decimal) bool {
	if rounding.Sign() <= 0 {
		rounding = decimal.New(1, -2)
	}
	return amount.Div(rounding).Round(0).IsZero()
}
