package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// StatementsHeader is the CSV header for statements.csv.
const StatementsHeader = "statement_id,journal_id,name,date,end_date,balance_start,balance_end_real,state"

// LinesHeader is the CSV header for lines.csv.
const LinesHeader = "line_id,statement_id,journal_id,account_id,sequence,transaction_id,date,description,amount,counterparty_id,counterparty_hint"

// CounterpartiesHeader is the CSV header for counterparties.csv.
const CounterpartiesHeader = "counterparty_id,name,remembered_hint,hint_diverged"

const (
	dateFormat = "2006-01-02"

	stmtFields   = 8
	colStmtID    = 0
	colStmtJrnl  = 1
	colStmtName  = 2
	colStmtDate  = 3
	colStmtEnd   = 4
	colBalStart  = 5
	colBalEnd    = 6
	colStmtState = 7

	lineFields  = 11
	colLineID   = 0
	colLineStmt = 1
	colLineJrnl = 2
	colLineAcct = 3
	colSeq      = 4
	colTxnID    = 5
	colLineDate = 6
	colDesc     = 7
	colAmount   = 8
	colCpartyID = 9
	colHint     = 10

	cpFields      = 4
	colCpID       = 0
	colCpName     = 1
	colCpHint     = 2
	colCpDiverged = 3
)

// ReadStatements reads statements.csv.
func ReadStatements(r io.Reader) ([]model.Statement, error) {
	records, err := readRecords(r, stmtFields)
	if err != nil {
		return nil, fmt.Errorf("reading statements CSV: %w", err)
	}
	var stmts []model.Statement
	for i, rec := range records {
		st, err := UnmarshalStatement(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// WriteStatements writes statements.csv (including header).
func WriteStatements(w io.Writer, stmts []model.Statement) error {
	rows := make([][]string, len(stmts))
	for i, st := range stmts {
		rows[i] = MarshalStatement(st)
	}
	return writeRecords(w, StatementsHeader, rows)
}

// MarshalStatement converts a Statement to a CSV row.
func MarshalStatement(st model.Statement) []string {
	row := make([]string, stmtFields)
	row[colStmtID] = st.ID
	row[colStmtJrnl] = st.JournalID
	row[colStmtName] = st.Name
	row[colStmtDate] = st.Date.Format(dateFormat)
	if !st.EndDate.IsZero() {
		row[colStmtEnd] = st.EndDate.Format(dateFormat)
	}
	row[colBalStart] = st.BalanceStart.String()
	row[colBalEnd] = st.BalanceEndReal.String()
	row[colStmtState] = string(st.State)
	return row
}

// UnmarshalStatement converts a CSV row to a Statement.
func UnmarshalStatement(record []string) (model.Statement, error) {
	if len(record) != stmtFields {
		return model.Statement{}, fmt.Errorf("expected %d fields, got %d", stmtFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[colStmtDate])
	if err != nil {
		return model.Statement{}, fmt.Errorf("parsing date %q: %w", record[colStmtDate], err)
	}

	var endDate time.Time
	if record[colStmtEnd] != "" {
		endDate, err = time.Parse(dateFormat, record[colStmtEnd])
		if err != nil {
			return model.Statement{}, fmt.Errorf("parsing end_date %q: %w", record[colStmtEnd], err)
		}
	}

	start, err := decimal.NewFromString(record[colBalStart])
	if err != nil {
		return model.Statement{}, fmt.Errorf("parsing balance_start %q: %w", record[colBalStart], err)
	}
	end, err := decimal.NewFromString(record[colBalEnd])
	if err != nil {
		return model.Statement{}, fmt.Errorf("parsing balance_end_real %q: %w", record[colBalEnd], err)
	}

	state := model.StatementState(record[colStmtState])
	switch state {
	case model.StateDraft, model.StateOpen, model.StatePosted, model.StateConfirmed:
	default:
		return model.Statement{}, fmt.Errorf("unknown state %q", record[colStmtState])
	}

	return model.Statement{
		ID:             record[colStmtID],
		JournalID:      record[colStmtJrnl],
		Name:           record[colStmtName],
		Date:           date,
		EndDate:        endDate,
		BalanceStart:   start,
		BalanceEndReal: end,
		State:          state,
	}, nil
}

// ReadLines reads lines.csv.
func ReadLines(r io.Reader) ([]model.Line, error) {
	records, err := readRecords(r, lineFields)
	if err != nil {
		return nil, fmt.Errorf("reading lines CSV: %w", err)
	}
	var lines []model.Line
	for i, rec := range records {
		l, err := UnmarshalLine(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// WriteLines writes lines.csv (including header).
func WriteLines(w io.Writer, lines []model.Line) error {
	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = MarshalLine(l)
	}
	return writeRecords(w, LinesHeader, rows)
}

// MarshalLine converts a Line to a CSV row.
func MarshalLine(l model.Line) []string {
	row := make([]string, lineFields)
	row[colLineID] = l.ID
	row[colLineStmt] = l.StatementID
	row[colLineJrnl] = l.JournalID
	row[colLineAcct] = l.AccountID
	row[colSeq] = strconv.Itoa(l.Sequence)
	row[colTxnID] = l.TransactionID
	row[colLineDate] = l.Date.Format(dateFormat)
	row[colDesc] = l.Description
	row[colAmount] = l.Amount.String()
	row[colCpartyID] = l.CounterpartyID
	row[colHint] = l.CounterpartyHint
	return row
}

// UnmarshalLine converts a CSV row to a Line.
func UnmarshalLine(record []string) (model.Line, error) {
	if len(record) != lineFields {
		return model.Line{}, fmt.Errorf("expected %d fields, got %d", lineFields, len(record))
	}

	seq, err := strconv.Atoi(record[colSeq])
	if err != nil {
		return model.Line{}, fmt.Errorf("parsing sequence %q: %w", record[colSeq], err)
	}

	date, err := time.Parse(dateFormat, record[colLineDate])
	if err != nil {
		return model.Line{}, fmt.Errorf("parsing date %q: %w", record[colLineDate], err)
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Line{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	return model.Line{
		ID:               record[colLineID],
		StatementID:      record[colLineStmt],
		JournalID:        record[colLineJrnl],
		AccountID:        record[colLineAcct],
		Sequence:         seq,
		TransactionID:    record[colTxnID],
		Date:             date,
		Description:      record[colDesc],
		Amount:           amount,
		CounterpartyID:   record[colCpartyID],
		CounterpartyHint: record[colHint],
	}, nil
}

// ReadCounterparties reads counterparties.csv.
func ReadCounterparties(r io.Reader) ([]model.Counterparty, error) {
	records, err := readRecords(r, cpFields)
	if err != nil {
		return nil, fmt.Errorf("reading counterparties CSV: %w", err)
	}
	var cps []model.Counterparty
	for i, rec := range records {
		cp, err := UnmarshalCounterparty(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// WriteCounterparties writes counterparties.csv (including header).
func WriteCounterparties(w io.Writer, cps []model.Counterparty) error {
	rows := make([][]string, len(cps))
	for i, cp := range cps {
		rows[i] = MarshalCounterparty(cp)
	}
	return writeRecords(w, CounterpartiesHeader, rows)
}

// MarshalCounterparty converts a Counterparty to a CSV row.
func MarshalCounterparty(cp model.Counterparty) []string {
	row := make([]string, cpFields)
	row[colCpID] = cp.ID
	row[colCpName] = cp.Name
	row[colCpHint] = cp.RememberedHint
	if cp.HintDiverged {
		row[colCpDiverged] = "true"
	}
	return row
}

// UnmarshalCounterparty converts a CSV row to a Counterparty.
func UnmarshalCounterparty(record []string) (model.Counterparty, error) {
	if len(record) != cpFields {
		return model.Counterparty{}, fmt.Errorf("expected %d fields, got %d", cpFields, len(record))
	}

	diverged := false
	if record[colCpDiverged] != "" {
		var err error
		diverged, err = strconv.ParseBool(record[colCpDiverged])
		if err != nil {
			return model.Counterparty{}, fmt.Errorf("parsing hint_diverged %q: %w", record[colCpDiverged], err)
		}
	}

	return model.Counterparty{
		ID:             record[colCpID],
		Name:           record[colCpName],
		RememberedHint: record[colCpHint],
		HintDiverged:   diverged,
	}, nil
}

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

func writeRecords(w io.Writer, header string, rows [][]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
