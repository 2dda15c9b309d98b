package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store *ledger.Store
	chain *Chain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := ledger.NewStore()
	require.NoError(t, s.PutJournal(context.Background(), model.Journal{
		ID: "bank", Code: "BNK1", Grouping: model.GroupMonth, Rounding: dec("0.01"),
	}))
	return &fixture{store: s, chain: New(s, zap.NewNop())}
}

// statement creates a statement on d holding one line per amount.
func (f *fixture) statement(t *testing.T, d time.Time, state model.StatementState, amounts ...string) model.Statement {
	t.Helper()
	ctx := context.Background()
	st, err := f.store.CreateStatement(ctx, model.Statement{JournalID: "bank", Date: d, State: state})
	require.NoError(t, err)
	var lines []model.Line
	for _, a := range amounts {
		lines = append(lines, model.Line{Date: d, Amount: dec(a)})
	}
	_, err = f.store.CreateLines(ctx, st.ID, lines)
	require.NoError(t, err)
	return st
}

func (f *fixture) reload(t *testing.T, id string) model.Statement {
	t.Helper()
	st, err := f.store.Statement(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestRecomputeFrom_Start(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.statement(t, date(2016, 1, 1), model.StatePosted, "10", "20")
	f.statement(t, date(2016, 2, 1), model.StatePosted, "-5")
	f.statement(t, date(2016, 3, 1), model.StateOpen)

	got, err := f.chain.RecomputeFrom(ctx, "bank", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	want := [][2]string{{"0", "30"}, {"30", "25"}, {"25", "25"}}
	for i, st := range got {
		assert.True(t, st.BalanceStart.Equal(dec(want[i][0])), "statement %d start %s", i, st.BalanceStart)
		assert.True(t, st.BalanceEndReal.Equal(dec(want[i][1])), "statement %d end %s", i, st.BalanceEndReal)
	}

	violations, err := f.chain.VerifyJournal(ctx, "bank")
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRecomputeFrom_KeepsEarlierStatements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jan := f.statement(t, date(2016, 1, 1), model.StatePosted, "10")
	// The real ending balance of January was forced to the provider's.
	jan.BalanceEndReal = dec("12")
	require.NoError(t, f.store.UpdateStatement(ctx, jan))
	feb := f.statement(t, date(2016, 2, 1), model.StateOpen, "3")

	got, err := f.chain.RecomputeFrom(ctx, "bank", date(2016, 2, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, f.reload(t, jan.ID).BalanceEndReal.Equal(dec("12")))
	feb = f.reload(t, feb.ID)
	assert.True(t, feb.BalanceStart.Equal(dec("12")))
	assert.True(t, feb.BalanceEndReal.Equal(dec("15")))
}

// countingStore counts statement writes.
type countingStore struct {
	*ledger.Store
	updates int
}

func (s *countingStore) UpdateStatement(ctx context.Context, st model.Statement) error {
	s.updates++
	return s.Store.UpdateStatement(ctx, st)
}

func TestRecomputeFrom_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jan := f.statement(t, date(2016, 1, 1), model.StatePosted, "10")
	jan.BalanceEndReal = dec("12")
	require.NoError(t, f.store.UpdateStatement(ctx, jan))
	feb := f.statement(t, date(2016, 2, 1), model.StateOpen, "3")
	mar := f.statement(t, date(2016, 3, 1), model.StateOpen, "-1", "4")

	counting := &countingStore{Store: f.store}
	c := New(counting, zap.NewNop())

	first, err := c.RecomputeFrom(ctx, "bank", date(2016, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, counting.updates)

	counting.updates = 0
	second, err := c.RecomputeFrom(ctx, "bank", date(2016, 2, 1))
	require.NoError(t, err)
	assert.Zero(t, counting.updates, "second pass should not write")
	assert.Equal(t, first, second)

	assert.True(t, f.reload(t, jan.ID).BalanceEndReal.Equal(dec("12")))
	feb = f.reload(t, feb.ID)
	assert.True(t, feb.BalanceStart.Equal(dec("12")))
	assert.True(t, feb.BalanceEndReal.Equal(dec("15")))
	mar = f.reload(t, mar.ID)
	assert.True(t, mar.BalanceStart.Equal(dec("15")))
	assert.True(t, mar.BalanceEndReal.Equal(dec("18")))
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.statement(t, date(2016, 1, 1), model.StateOpen, "7", "3")

	settled, err := f.chain.Settle(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, settled.BalanceEndReal.Equal(dec("10")))
	assert.True(t, f.reload(t, st.ID).BalanceEndReal.Equal(dec("10")))
}

func TestPost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.statement(t, date(2016, 1, 1), model.StateOpen, "10")

	st.BalanceEndReal = dec("10.004")
	require.NoError(t, f.store.UpdateStatement(ctx, st))
	require.NoError(t, f.chain.Post(ctx, []string{st.ID}))
	assert.Equal(t, model.StatePosted, f.reload(t, st.ID).State)
}

func TestPost_BalanceMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.statement(t, date(2016, 1, 1), model.StateOpen, "10")

	st.BalanceEndReal = dec("11")
	require.NoError(t, f.store.UpdateStatement(ctx, st))

	err := f.chain.Post(ctx, []string{st.ID})
	require.ErrorIs(t, err, ErrBalanceMismatch)

	var v Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, st.Name, v.Statement)
	assert.Equal(t, model.StateOpen, f.reload(t, st.ID).State)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jan := f.statement(t, date(2016, 1, 1), model.StatePosted, "10")
	feb := f.statement(t, date(2016, 2, 1), model.StateConfirmed, "10")

	require.NoError(t, f.chain.Reopen(ctx, "bank", []string{feb.ID}))
	assert.Equal(t, model.StateOpen, f.reload(t, feb.ID).State)
	assert.Equal(t, model.StatePosted, f.reload(t, jan.ID).State)
}

func TestReopen_PredecessorReopenedTogether(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jan := f.statement(t, date(2016, 1, 1), model.StateOpen, "10")
	feb := f.statement(t, date(2016, 2, 1), model.StatePosted, "10")

	require.NoError(t, f.chain.Reopen(ctx, "bank", []string{jan.ID, feb.ID}))
	assert.Equal(t, model.StateOpen, f.reload(t, feb.ID).State)
}

func TestReopen_UnpostedPredecessor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.statement(t, date(2016, 1, 1), model.StateOpen, "10")
	feb := f.statement(t, date(2016, 2, 1), model.StatePosted, "10")

	err := f.chain.Reopen(ctx, "bank", []string{feb.ID})
	require.ErrorIs(t, err, ErrUnpostedPredecessor)
	assert.Equal(t, model.StatePosted, f.reload(t, feb.ID).State)
}

func TestReopen_UnknownStatement(t *testing.T) {
	f := newFixture(t)
	err := f.chain.Reopen(context.Background(), "bank", []string{"missing"})
	require.ErrorContains(t, err, "not found")
}

func TestVerify(t *testing.T) {
	rounding := dec("0.01")
	tests := []struct {
		name  string
		stmts []model.Statement
		kinds []error
	}{
		{
			name: "empty",
		},
		{
			name: "linked",
			stmts: []model.Statement{
				{Name: "a", Date: date(2016, 1, 1), BalanceStart: dec("0"), BalanceEndReal: dec("5")},
				{Name: "b", Date: date(2016, 2, 1), BalanceStart: dec("5.001"), BalanceEndReal: dec("9")},
			},
		},
		{
			name: "first not at zero",
			stmts: []model.Statement{
				{Name: "a", Date: date(2016, 1, 1), BalanceStart: dec("1"), BalanceEndReal: dec("5")},
			},
			kinds: []error{ErrBrokenLink},
		},
		{
			name: "broken link",
			stmts: []model.Statement{
				{Name: "a", Date: date(2016, 1, 1), BalanceEndReal: dec("5")},
				{Name: "b", Date: date(2016, 2, 1), BalanceStart: dec("4"), BalanceEndReal: dec("9")},
			},
			kinds: []error{ErrBrokenLink},
		},
		{
			name: "duplicate date",
			stmts: []model.Statement{
				{Name: "a", Date: date(2016, 1, 1), BalanceEndReal: dec("5")},
				{Name: "b", Date: date(2016, 1, 1), BalanceStart: dec("5"), BalanceEndReal: dec("9")},
			},
			kinds: []error{ErrDuplicateDate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Verify(tt.stmts, rounding)
			require.Len(t, got, len(tt.kinds))
			for i, kind := range tt.kinds {
				assert.ErrorIs(t, got[i], kind)
			}
		})
	}
}

func TestViolationError(t *testing.T) {
	v := Violation{Kind: ErrBrokenLink, Statement: "BNK1 Statement 2016/01/00001", Description: "starts at 4"}
	assert.Equal(t, "starting balance does not match predecessor [BNK1 Statement 2016/01/00001]: starts at 4", v.Error())
}
