package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chaseHeader = "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\n"

func parseChaseFixture(t *testing.T) Feed {
	t.Helper()
	data, err := os.ReadFile("../../testdata/chase_checking.csv")
	require.NoError(t, err)

	p := &ChaseParser{}
	feed, err := p.Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	return feed
}

func TestChaseParser_Parse(t *testing.T) {
	feed := parseChaseFixture(t)
	txns := feed.Transactions
	require.Len(t, txns, 6)

	// Newest first, as exported by Chase.
	assert.Equal(t, "AMAZON WEB SERVICES AWS.AMAZON.CO", txns[0].Description)
	assert.Equal(t, "-112.45", txns[0].Amount.StringFixed(2))

	income := txns[2]
	assert.Equal(t, "ACME CONSULTING INVOICE 1042", income.Description)
	assert.True(t, income.Amount.IsPositive())
	assert.Equal(t, "3500.00", income.Amount.StringFixed(2))

	last := txns[5]
	assert.Equal(t, "GITHUB *PRO SUBSCRIPTION", last.Description)
	assert.Equal(t, 2025, last.Date.Year())
	assert.Equal(t, 1, int(last.Date.Month()))
	assert.Equal(t, 3, last.Date.Day())
}

func TestChaseParser_Balance(t *testing.T) {
	feed := parseChaseFixture(t)
	require.True(t, feed.HasBalance)
	assert.Equal(t, "8310.55", feed.Balance.StringFixed(2))
}

func TestChaseParser_BalanceFromNewestRow(t *testing.T) {
	csv := chaseHeader +
		"DEBIT,01/03/2025,OLDER,-1.00,ACH_DEBIT,10.00,\n" +
		"DEBIT,01/05/2025,NEWER,-1.00,ACH_DEBIT,9.00,\n"
	feed, err := (&ChaseParser{}).Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "9.00", feed.Balance.StringFixed(2))
}

func TestChaseParser_NoBalanceColumn(t *testing.T) {
	csv := chaseHeader + "DEBIT,01/03/2025,desc,-4.00,ACH_DEBIT,,\n"
	feed, err := (&ChaseParser{}).Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.False(t, feed.HasBalance)
	assert.Len(t, feed.Transactions, 1)
}

func TestChaseParser_Identifiers(t *testing.T) {
	feed := parseChaseFixture(t)
	txns := feed.Transactions

	assert.True(t, strings.HasPrefix(txns[5].Identifier, "chase_20250103_GITHUBPROS_"))

	// Two identical coffees on the same day stay distinct.
	assert.Equal(t, txns[3].Description, txns[4].Description)
	assert.NotEqual(t, txns[3].Identifier, txns[4].Identifier)

	seen := make(map[string]bool)
	for _, txn := range txns {
		assert.False(t, seen[txn.Identifier], "duplicate identifier %s", txn.Identifier)
		seen[txn.Identifier] = true
	}

	// Parsing the same export again yields the same identifiers.
	again := parseChaseFixture(t)
	for i := range txns {
		assert.Equal(t, txns[i].Identifier, again.Transactions[i].Identifier)
	}
}

func TestChaseParser_EmptyFile(t *testing.T) {
	p := &ChaseParser{}
	feed, err := p.Parse(strings.NewReader(chaseHeader))
	require.NoError(t, err)
	assert.Nil(t, feed.Transactions)
	assert.False(t, feed.HasBalance)
}

func TestChaseParser_BadDate(t *testing.T) {
	csv := chaseHeader + "DEBIT,NOTADATE,desc,-4.00,ACH_DEBIT,100.00,\n"
	p := &ChaseParser{}
	_, err := p.Parse(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2: parsing date")
}

func TestChaseParser_BadAmount(t *testing.T) {
	csv := chaseHeader + "DEBIT,01/03/2025,desc,NOTANUMBER,ACH_DEBIT,100.00,\n"
	p := &ChaseParser{}
	_, err := p.Parse(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing amount")
}

func TestChaseParser_ShortRow(t *testing.T) {
	csv := chaseHeader + "DEBIT,01/03/2025,desc\n"
	_, err := (&ChaseParser{}).Parse(strings.NewReader(csv))
	require.ErrorContains(t, err, "expected at least")
}

func TestJSONParser_Parse(t *testing.T) {
	data := `{
  "balance": "1000.00",
  "transactions": [
    {"id": "tx-1", "date": "2016-01-01", "name": "transaction_1", "amount": "10", "partner_info": "test_vendor_name"},
    {"id": "tx-2", "date": "2016-01-03", "name": "transaction_2", "amount": -2.5}
  ]
}`
	feed, err := (&JSONParser{}).Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.True(t, feed.HasBalance)
	assert.Equal(t, "1000.00", feed.Balance.StringFixed(2))

	require.Len(t, feed.Transactions, 2)
	first := feed.Transactions[0]
	assert.Equal(t, "tx-1", first.Identifier)
	assert.Equal(t, "transaction_1", first.Description)
	assert.Equal(t, "test_vendor_name", first.CounterpartyHint)
	assert.Equal(t, 1, first.Date.Day())
	assert.Equal(t, "-2.50", feed.Transactions[1].Amount.StringFixed(2))
	assert.Empty(t, feed.Transactions[1].CounterpartyHint)
}

func TestJSONParser_NoBalance(t *testing.T) {
	feed, err := (&JSONParser{}).Parse(strings.NewReader(`{"transactions": []}`))
	require.NoError(t, err)
	assert.False(t, feed.HasBalance)
	assert.Empty(t, feed.Transactions)
}

func TestJSONParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"malformed", `{"transactions": [`, "decoding JSON feed"},
		{"missing id", `{"transactions": [{"date": "2016-01-01", "amount": "1"}]}`, "transaction 1: missing id"},
		{"bad date", `{"transactions": [{"id": "a", "date": "01/01/2016", "amount": "1"}]}`, "parsing date"},
		{"bad amount", `{"transactions": [{"id": "a", "date": "2016-01-01", "amount": "x"}]}`, "decoding JSON feed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&JSONParser{}).Parse(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nonexistent"))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	p := r.Get("chase")
	require.NotNil(t, p)
	assert.Equal(t, "chase", p.Format())
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	assert.NotNil(t, r.Get("Chase"))
	assert.NotNil(t, r.Get("CHASE"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&JSONParser{})
	assert.Panics(t, func() { r.Register(&JSONParser{}) })
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.Get("chase"))
	assert.NotNil(t, r.Get("json"))
}

func TestParseFile(t *testing.T) {
	r := DefaultRegistry()

	feed, err := r.ParseFile("chase", "../../testdata/chase_checking.csv")
	require.NoError(t, err)
	assert.Len(t, feed.Transactions, 6)

	_, err = r.ParseFile("ofx", "../../testdata/chase_checking.csv")
	require.ErrorContains(t, err, "unknown feed format")

	_, err = r.ParseFile("json", "../../testdata/chase_checking.csv")
	require.ErrorContains(t, err, "parsing chase_checking.csv")
}

func TestScan_FindsFeeds(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(importDir, "bank.csv"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "feed.JSON"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "other.txt"), []byte("data"), 0o644))

	files, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "bank.csv", files[0].Name)
	assert.Equal(t, "feed.JSON", files[1].Name)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestScan_IgnoresProcessedDir(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	processedDir := filepath.Join(importDir, "processed")
	require.NoError(t, os.MkdirAll(processedDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(importDir, "new.csv"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(processedDir, "old.csv"), []byte("data"), 0o644))

	files, err := Scan(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, "new.csv", files[0].Name)
}

func TestScan_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	files, err := Scan(dir)
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "bank.csv"), []byte("data"), 0o644))

	err := MarkProcessed(dir, "bank.csv")
	require.NoError(t, err)

	// Source gone.
	_, err = os.Stat(filepath.Join(importDir, "bank.csv"))
	assert.True(t, os.IsNotExist(err))

	// Destination exists.
	_, err = os.Stat(filepath.Join(dir, "import", "processed", "bank.csv"))
	assert.NoError(t, err)
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	importDir := filepath.Join(dir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "bank.csv"), []byte("data"), 0o644))
	require.NoError(t, MarkProcessed(dir, "bank.csv"))

	require.NoError(t, Restore(dir, "bank.csv"))

	data, err := os.ReadFile(filepath.Join(importDir, "bank.csv"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	_, err = os.Stat(filepath.Join(importDir, "processed", "bank.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestore_Missing(t *testing.T) {
	err := Restore(t.TempDir(), "nope.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restoring nope.csv")
}
