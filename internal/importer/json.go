package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// JSONParser parses the native feed format:
//
//	{"balance": "1000.00", "transactions": [
//	  {"id": "tx-1", "date": "2016-01-01", "name": "Coffee", "amount": "-3.50", "partner_info": "STARBUCKS"}
//	]}
type JSONParser struct{}

type jsonFeed struct {
	Balance      decimal.NullDecimal `json:"balance"`
	Transactions []jsonTransaction   `json:"transactions"`
}

type jsonTransaction struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	PartnerInfo string          `json:"partner_info"`
}

// Format returns the parser name.
func (p *JSONParser) Format() string { return "json" }

// Parse decodes a JSON feed.
func (p *JSONParser) Parse(r io.Reader) (Feed, error) {
	var raw jsonFeed
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Feed{}, fmt.Errorf("decoding JSON feed: %w", err)
	}

	feed := Feed{
		Balance:    raw.Balance.Decimal,
		HasBalance: raw.Balance.Valid,
	}
	for i, t := range raw.Transactions {
		if t.ID == "" {
			return Feed{}, fmt.Errorf("transaction %d: missing id", i+1)
		}
		date, err := time.Parse(time.DateOnly, t.Date)
		if err != nil {
			return Feed{}, fmt.Errorf("transaction %d: parsing date %q: %w", i+1, t.Date, err)
		}
		feed.Transactions = append(feed.Transactions, model.Transaction{
			Identifier:       t.ID,
			Date:             date,
			Description:      t.Name,
			Amount:           t.Amount,
			CounterpartyHint: t.PartnerInfo,
		})
	}
	return feed, nil
}
