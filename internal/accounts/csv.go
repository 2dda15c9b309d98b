package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// JournalsHeader is the CSV header for journals.csv.
const JournalsHeader = "journal_id,code,name,grouping,rounding,statements_source,last_synced_at"

// AccountsHeader is the CSV header for online-accounts.csv.
const AccountsHeader = "account_id,name,balance,journal_ids,last_sync"

const (
	dateFormat = "2006-01-02"

	journalFields  = 7
	colJournalID   = 0
	colCode        = 1
	colJournalName = 2
	colGrouping    = 3
	colRounding    = 4
	colSource      = 5
	colLastSynced  = 6

	accountFields  = 5
	colAccountID   = 0
	colAccountName = 1
	colBalance     = 2
	colJournalIDs  = 3
	colLastSync    = 4
)

// ReadJournals reads journals.csv.
func ReadJournals(r io.Reader) ([]model.Journal, error) {
	records, err := readRecords(r, journalFields)
	if err != nil {
		return nil, fmt.Errorf("reading journals CSV: %w", err)
	}

	var journals []model.Journal
	for i, rec := range records {
		j, err := UnmarshalJournal(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		journals = append(journals, j)
	}
	return journals, nil
}

// WriteJournals writes journals.csv.
func WriteJournals(w io.Writer, journals []model.Journal) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(JournalsHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, j := range journals {
		if err := cw.Write(MarshalJournal(j)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalJournal converts a Journal to a CSV row.
func MarshalJournal(j model.Journal) []string {
	row := make([]string, journalFields)
	row[colJournalID] = j.ID
	row[colCode] = j.Code
	row[colJournalName] = j.Name
	row[colGrouping] = string(j.Grouping)
	if !j.Rounding.IsZero() {
		row[colRounding] = j.Rounding.String()
	}
	row[colSource] = j.StatementsSource
	row[colLastSynced] = formatDate(j.LastSyncedAt)
	return row
}

// UnmarshalJournal converts a CSV row to a Journal.
func UnmarshalJournal(record []string) (model.Journal, error) {
	if len(record) != journalFields {
		return model.Journal{}, fmt.Errorf("expected %d fields, got %d", journalFields, len(record))
	}

	grouping, err := model.ParseGroupingMode(record[colGrouping])
	if err != nil {
		return model.Journal{}, err
	}

	var rounding decimal.Decimal
	if record[colRounding] != "" {
		rounding, err = decimal.NewFromString(record[colRounding])
		if err != nil {
			return model.Journal{}, fmt.Errorf("parsing rounding %q: %w", record[colRounding], err)
		}
	}

	lastSynced, err := parseDate(record[colLastSynced])
	if err != nil {
		return model.Journal{}, fmt.Errorf("parsing last_synced_at %q: %w", record[colLastSynced], err)
	}

	return model.Journal{
		ID:               record[colJournalID],
		Code:             record[colCode],
		Name:             record[colJournalName],
		Grouping:         grouping,
		Rounding:         rounding,
		StatementsSource: record[colSource],
		LastSyncedAt:     lastSynced,
	}, nil
}

// ReadAccounts reads online-accounts.csv.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	records, err := readRecords(r, accountFields)
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	var accounts []model.Account
	for i, rec := range records {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes online-accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(AccountsHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, accountFields)
	row[colAccountID] = acct.ID
	row[colAccountName] = acct.Name
	row[colBalance] = acct.Balance.StringFixed(2)
	row[colJournalIDs] = strings.Join(acct.JournalIDs, ";")
	row[colLastSync] = formatDate(acct.LastSync)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != accountFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", accountFields, len(record))
	}

	balance := decimal.Zero
	if record[colBalance] != "" {
		var err error
		balance, err = decimal.NewFromString(record[colBalance])
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing balance %q: %w", record[colBalance], err)
		}
	}

	var journalIDs []string
	if record[colJournalIDs] != "" {
		journalIDs = strings.Split(record[colJournalIDs], ";")
	}

	lastSync, err := parseDate(record[colLastSync])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing last_sync %q: %w", record[colLastSync], err)
	}

	return model.Account{
		ID:         record[colAccountID],
		Name:       record[colAccountName],
		Balance:    balance,
		JournalIDs: journalIDs,
		LastSync:   lastSync,
	}, nil
}

// readRecords reads all rows after the header.
func readRecords(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil
	}
	return records[1:], nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateFormat)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateFormat, s)
}
