package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/model"
)

func TestAtomic_RollsBackJournal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutJournal(ctx, model.Journal{ID: "other", Code: "BNK2", Rounding: dec("0.01")}))

	kept, err := s.CreateStatement(ctx, model.Statement{JournalID: "bank", Date: date(2016, 1, 1), State: model.StatePosted})
	require.NoError(t, err)
	_, err = s.CreateLines(ctx, kept.ID, []model.Line{{TransactionID: "t1", Date: date(2016, 1, 2), Amount: dec("5")}})
	require.NoError(t, err)

	boom := errors.New("boom")
	var otherID string
	err = s.Atomic(ctx, "bank", func(ctx context.Context) error {
		kept.State = model.StateOpen
		require.NoError(t, s.UpdateStatement(ctx, kept))

		st, err := s.CreateStatement(ctx, model.Statement{JournalID: "bank", Date: date(2016, 2, 1)})
		require.NoError(t, err)
		_, err = s.CreateLines(ctx, st.ID, []model.Line{{TransactionID: "t2", Date: date(2016, 2, 2), Amount: dec("1")}})
		require.NoError(t, err)

		a, err := s.Account(ctx, "checking")
		require.NoError(t, err)
		a.Balance = dec("99")
		require.NoError(t, s.UpdateAccount(ctx, a))

		// Records of another journal survive the rollback.
		other, err := s.CreateStatement(ctx, model.Statement{JournalID: "other", Date: date(2016, 2, 1)})
		require.NoError(t, err)
		otherID = other.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	stmts, err := s.Statements(ctx, "bank")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, model.StatePosted, stmts[0].State)

	found, err := s.ExistingIdentifiers(ctx, "bank", []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"t1": true}, found)

	a, err := s.Account(ctx, "checking")
	require.NoError(t, err)
	assert.True(t, a.Balance.IsZero())

	_, err = s.Statement(ctx, otherID)
	require.NoError(t, err)
}

func TestAtomic_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Atomic(ctx, "bank", func(ctx context.Context) error {
		_, err := s.CreateStatement(ctx, model.Statement{JournalID: "bank", Date: date(2016, 1, 1)})
		return err
	})
	require.NoError(t, err)

	n, err := s.CountStatements(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
