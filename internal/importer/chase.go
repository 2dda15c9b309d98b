package importer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseMinFields  = 6
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColBalance = 5
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV. The feed balance is the Balance column of the
// most recent row.
func (p *ChaseParser) Parse(r io.Reader) (Feed, error) {
	cr := csv.NewReader(r)
	// Chase exports sometimes carry a trailing comma on data rows only.
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return Feed{}, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(records) <= 1 {
		return Feed{}, nil
	}

	var feed Feed
	var newest time.Time
	seen := make(map[string]int)
	for i, rec := range records[1:] {
		if len(rec) < chaseMinFields {
			return Feed{}, fmt.Errorf("row %d: expected at least %d fields, got %d", i+2, chaseMinFields, len(rec))
		}
		txn, err := parseChaseRow(rec, seen)
		if err != nil {
			return Feed{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		feed.Transactions = append(feed.Transactions, txn)

		if rec[chaseColBalance] == "" || (feed.HasBalance && !txn.Date.After(newest)) {
			continue
		}
		bal, err := decimal.NewFromString(rec[chaseColBalance])
		if err != nil {
			return Feed{}, fmt.Errorf("row %d: parsing balance %q: %w", i+2, rec[chaseColBalance], err)
		}
		feed.Balance = bal
		feed.HasBalance = true
		newest = txn.Date
	}
	return feed, nil
}

func parseChaseRow(rec []string, seen map[string]int) (model.Transaction, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	desc := strings.TrimSpace(rec[chaseColDesc])
	return model.Transaction{
		Identifier:  makeChaseID(date, desc, amount, seen),
		Date:        date,
		Description: desc,
		Amount:      amount,
	}, nil
}

// makeChaseID creates an identifier like chase_20250103_GITHUBPROS_1f0c2a9b.
// Chase exports carry no transaction ID, so identical rows of one day are
// told apart by their occurrence count in the file.
func makeChaseID(date time.Time, desc string, amount decimal.Decimal, seen map[string]int) string {
	key := date.Format("20060102") + "|" + desc + "|" + amount.String()
	seen[key]++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, seen[key])))

	prefix := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, desc)
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("chase_%s_%s_%s", date.Format("20060102"), prefix, hex.EncodeToString(sum[:4]))
}
