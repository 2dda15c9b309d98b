// Package chain keeps the statements of a journal linked by balance:
// every statement starts where its predecessor ended.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/banksync/internal/model"
)

// Store is the statement storage the chain needs.
type Store interface {
	Journal(ctx context.Context, id string) (model.Journal, error)
	// Statements returns the journal's statements ordered by date.
	Statements(ctx context.Context, journalID string) ([]model.Statement, error)
	Statement(ctx context.Context, id string) (model.Statement, error)
	Lines(ctx context.Context, statementID string) ([]model.Line, error)
	UpdateStatement(ctx context.Context, st model.Statement) error
}

// Chain recomputes and guards balances of statement sequences.
type Chain struct {
	store  Store
	logger *zap.Logger
}

// New creates a Chain over store.
func New(store Store, logger *zap.Logger) *Chain {
	return &Chain{store: store, logger: logger}
}

// RecomputeFrom rewrites the balances of every statement of the journal dated
// on or after from. The first one starts at its predecessor's real ending
// balance (zero without predecessor); each ending balance is its start plus
// its lines. Returns the recomputed statements in date order.
func (c *Chain) RecomputeFrom(ctx context.Context, journalID string, from time.Time) ([]model.Statement, error) {
	stmts, err := c.store.Statements(ctx, journalID)
	if err != nil {
		return nil, fmt.Errorf("loading statements: %w", err)
	}

	running := decimal.Zero
	var out []model.Statement
	for _, st := range stmts {
		if st.Date.Before(from) {
			running = st.BalanceEndReal
			continue
		}
		lines, err := c.store.Lines(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("loading lines of %s: %w", st.Name, err)
		}
		end := running.Add(model.SumLines(lines))
		if !st.BalanceStart.Equal(running) || !st.BalanceEndReal.Equal(end) {
			st.BalanceStart = running
			st.BalanceEndReal = end
			if err := c.store.UpdateStatement(ctx, st); err != nil {
				return nil, fmt.Errorf("updating %s: %w", st.Name, err)
			}
		}
		running = end
		out = append(out, st)
	}

	c.logger.Debug("recomputed balance chain",
		zap.String("journal", journalID),
		zap.Time("from", from),
		zap.Int("statements", len(out)),
	)
	return out, nil
}

// Settle forces the real ending balance of a statement to its start plus
// its lines, so that it can be posted.
func (c *Chain) Settle(ctx context.Context, statementID string) (model.Statement, error) {
	st, err := c.store.Statement(ctx, statementID)
	if err != nil {
		return model.Statement{}, err
	}
	end, err := c.computedEnd(ctx, st)
	if err != nil {
		return model.Statement{}, err
	}
	if st.BalanceEndReal.Equal(end) {
		return st, nil
	}
	st.BalanceEndReal = end
	if err := c.store.UpdateStatement(ctx, st); err != nil {
		return model.Statement{}, fmt.Errorf("updating %s: %w", st.Name, err)
	}
	return st, nil
}

// Reopen moves the given statements back to open so lines can be appended.
// Each statement's predecessor must be finalized, or be reopened in the same
// call; otherwise nothing is changed and a *Violation is returned.
func (c *Chain) Reopen(ctx context.Context, journalID string, statementIDs []string) error {
	stmts, err := c.store.Statements(ctx, journalID)
	if err != nil {
		return fmt.Errorf("loading statements: %w", err)
	}

	targets := make(map[string]bool, len(statementIDs))
	for _, id := range statementIDs {
		targets[id] = true
	}

	var reopen []model.Statement
	for i, st := range stmts {
		if !targets[st.ID] {
			continue
		}
		if i > 0 {
			prev := stmts[i-1]
			if !prev.State.Finalized() && !targets[prev.ID] {
				return Violation{
					Kind:        ErrUnpostedPredecessor,
					Statement:   label(st),
					Description: fmt.Sprintf("predecessor %s is %s", label(prev), prev.State),
				}
			}
		}
		reopen = append(reopen, st)
	}
	if len(reopen) != len(targets) {
		return fmt.Errorf("reopening statements: %d of %d not found in journal %s", len(targets)-len(reopen), len(targets), journalID)
	}

	for _, st := range reopen {
		if st.State == model.StateOpen {
			continue
		}
		st.State = model.StateOpen
		if err := c.store.UpdateStatement(ctx, st); err != nil {
			return fmt.Errorf("reopening %s: %w", label(st), err)
		}
	}
	return nil
}

// Post finalizes statements. The real ending balance of each must match its
// line-derived balance at the journal rounding.
func (c *Chain) Post(ctx context.Context, statementIDs []string) error {
	for _, id := range statementIDs {
		st, err := c.store.Statement(ctx, id)
		if err != nil {
			return err
		}
		journal, err := c.store.Journal(ctx, st.JournalID)
		if err != nil {
			return err
		}
		end, err := c.computedEnd(ctx, st)
		if err != nil {
			return err
		}
		if !journal.IsZeroAmount(st.BalanceEndReal.Sub(end)) {
			return Violation{
				Kind:        ErrBalanceMismatch,
				Statement:   label(st),
				Description: fmt.Sprintf("real ending balance %s, computed %s", st.BalanceEndReal.String(), end.String()),
			}
		}
		if st.State == model.StatePosted {
			continue
		}
		st.State = model.StatePosted
		if err := c.store.UpdateStatement(ctx, st); err != nil {
			return fmt.Errorf("posting %s: %w", label(st), err)
		}
	}
	return nil
}

// VerifyJournal checks the chain invariant over all statements of a journal.
func (c *Chain) VerifyJournal(ctx context.Context, journalID string) ([]Violation, error) {
	journal, err := c.store.Journal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	stmts, err := c.store.Statements(ctx, journalID)
	if err != nil {
		return nil, fmt.Errorf("loading statements: %w", err)
	}
	return Verify(stmts, journal.Rounding), nil
}

// Verify checks date-ordered statements for chain violations.
func Verify(stmts []model.Statement, rounding decimal.Decimal) []Violation {
	var errs []Violation
	for i, st := range stmts {
		if i == 0 {
			if !model.IsZeroAt(st.BalanceStart, rounding) {
				errs = append(errs, Violation{
					Kind:        ErrBrokenLink,
					Statement:   label(st),
					Description: fmt.Sprintf("first statement starts at %s, want 0", st.BalanceStart.String()),
				})
			}
			continue
		}
		prev := stmts[i-1]
		if st.Date.Equal(prev.Date) {
			errs = append(errs, Violation{
				Kind:        ErrDuplicateDate,
				Statement:   label(st),
				Description: fmt.Sprintf("same date as %s (%s)", label(prev), st.Date.Format(time.DateOnly)),
			})
		}
		if !model.IsZeroAt(st.BalanceStart.Sub(prev.BalanceEndReal), rounding) {
			errs = append(errs, Violation{
				Kind:        ErrBrokenLink,
				Statement:   label(st),
				Description: fmt.Sprintf("starts at %s, %s ended at %s", st.BalanceStart.String(), label(prev), prev.BalanceEndReal.String()),
			})
		}
	}
	return errs
}

func (c *Chain) computedEnd(ctx context.Context, st model.Statement) (decimal.Decimal, error) {
	lines, err := c.store.Lines(ctx, st.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading lines of %s: %w", label(st), err)
	}
	return st.BalanceStart.Add(model.SumLines(lines)), nil
}

func label(st model.Statement) string {
	if st.Name != "" {
		return st.Name
	}
	return st.ID
}
