// Package partner links statement lines to counterparties through the
// free-form hints banks attach to transactions, and learns those hints back
// when a reviewer validates a statement.
package partner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleared-dev/banksync/internal/model"
)

// ErrStatementConfirmed is returned when changing a line of a validated statement.
var ErrStatementConfirmed = errors.New("statement is confirmed")

// Store looks up counterparties by remembered hint.
type Store interface {
	CounterpartiesByHint(ctx context.Context, hints []string) (map[string]string, error)
}

// ValidateStore is the storage needed to validate statements and assign
// counterparties to lines.
type ValidateStore interface {
	Statement(ctx context.Context, id string) (model.Statement, error)
	UpdateStatement(ctx context.Context, st model.Statement) error
	Lines(ctx context.Context, statementID string) ([]model.Line, error)
	Line(ctx context.Context, id string) (model.Line, error)
	UpdateLine(ctx context.Context, l model.Line) error
	Counterparty(ctx context.Context, id string) (model.Counterparty, error)
	UpdateCounterparty(ctx context.Context, cp model.Counterparty) error
}

// Poster finalizes statements.
type Poster interface {
	Post(ctx context.Context, statementIDs []string) error
}

// ResolveHints maps each distinct non-empty hint to the counterparty that
// remembers it, in a single store call. Unknown hints are absent from the
// result; no counterparty is ever created here.
func ResolveHints(ctx context.Context, store Store, hints []string) (map[string]string, error) {
	seen := make(map[string]bool, len(hints))
	var distinct []string
	for _, h := range hints {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		distinct = append(distinct, h)
	}
	if len(distinct) == 0 {
		return map[string]string{}, nil
	}

	found, err := store.CounterpartiesByHint(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("resolving counterparty hints: %w", err)
	}
	return found, nil
}

// Converge applies one validated observation of hint to cp. A hint is learnt
// while nothing is remembered; a disagreeing hint clears the remembered one
// for good.
func Converge(cp model.Counterparty, hint string) model.Counterparty {
	switch {
	case hint == "" || cp.HintDiverged:
	case cp.RememberedHint == "":
		cp.RememberedHint = hint
	case cp.RememberedHint != hint:
		cp.RememberedHint = ""
		cp.HintDiverged = true
	}
	return cp
}

// Validator confirms reviewed statements.
type Validator struct {
	store  ValidateStore
	poster Poster
	logger *zap.Logger
}

// NewValidator creates a Validator.
func NewValidator(store ValidateStore, poster Poster, logger *zap.Logger) *Validator {
	return &Validator{store: store, poster: poster, logger: logger}
}

// Validate confirms a statement. An open or draft statement is posted first,
// so its ending balance must match its lines. Every line carrying both a
// counterparty and a hint is then converged onto that counterparty. Returns
// the counterparties whose remembered hint changed.
func (v *Validator) Validate(ctx context.Context, statementID string) ([]model.Counterparty, error) {
	st, err := v.store.Statement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if st.State == model.StateConfirmed {
		return nil, nil
	}
	if st.State != model.StatePosted {
		if err := v.poster.Post(ctx, []string{st.ID}); err != nil {
			return nil, fmt.Errorf("posting %s: %w", st.Name, err)
		}
		if st, err = v.store.Statement(ctx, statementID); err != nil {
			return nil, err
		}
	}
	st.State = model.StateConfirmed
	if err := v.store.UpdateStatement(ctx, st); err != nil {
		return nil, fmt.Errorf("confirming %s: %w", st.Name, err)
	}

	lines, err := v.store.Lines(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("loading lines of %s: %w", st.Name, err)
	}

	changed := make(map[string]int)
	var out []model.Counterparty
	for _, l := range lines {
		if l.CounterpartyID == "" || l.CounterpartyHint == "" {
			continue
		}
		cp, err := v.store.Counterparty(ctx, l.CounterpartyID)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", l.ID, err)
		}
		next := Converge(cp, l.CounterpartyHint)
		if next == cp {
			continue
		}
		if err := v.store.UpdateCounterparty(ctx, next); err != nil {
			return nil, fmt.Errorf("updating counterparty %s: %w", cp.ID, err)
		}
		v.logger.Info("counterparty hint converged",
			zap.String("counterparty", cp.ID),
			zap.String("hint", next.RememberedHint),
			zap.Bool("diverged", next.HintDiverged),
		)
		if i, ok := changed[next.ID]; ok {
			out[i] = next
			continue
		}
		changed[next.ID] = len(out)
		out = append(out, next)
	}
	return out, nil
}

// Assign sets the counterparty of a line. Lines of confirmed statements are
// locked.
func (v *Validator) Assign(ctx context.Context, lineID, counterpartyID string) error {
	l, err := v.store.Line(ctx, lineID)
	if err != nil {
		return err
	}
	st, err := v.store.Statement(ctx, l.StatementID)
	if err != nil {
		return err
	}
	if st.State == model.StateConfirmed {
		return fmt.Errorf("assigning line %s: %w", lineID, ErrStatementConfirmed)
	}
	if counterpartyID != "" {
		if _, err := v.store.Counterparty(ctx, counterpartyID); err != nil {
			return err
		}
	}
	l.CounterpartyID = counterpartyID
	if err := v.store.UpdateLine(ctx, l); err != nil {
		return fmt.Errorf("assigning line %s: %w", lineID, err)
	}
	return nil
}
