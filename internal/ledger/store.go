// Package ledger holds journals, statements, lines and counterparties in
// memory and persists them as CSV files under a repository root.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cleared-dev/banksync/internal/id"
	"github.com/cleared-dev/banksync/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTransaction is returned when a line would reuse a
	// transaction identifier already present in its journal.
	ErrDuplicateTransaction = errors.New("duplicate transaction identifier")
	// ErrDuplicateStatementDate is returned when a journal already has a
	// statement on that date.
	ErrDuplicateStatementDate = errors.New("duplicate statement date")
)

// Store is a thread-safe in-memory ledger.
type Store struct {
	mu sync.RWMutex

	journals       map[string]model.Journal
	accounts       map[string]model.Account
	statements     map[string]model.Statement
	lines          map[string]model.Line
	counterparties map[string]model.Counterparty
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		journals:       make(map[string]model.Journal),
		accounts:       make(map[string]model.Account),
		statements:     make(map[string]model.Statement),
		lines:          make(map[string]model.Line),
		counterparties: make(map[string]model.Counterparty),
	}
}

// --- Journals ---

// PutJournal inserts or replaces a journal.
func (s *Store) PutJournal(_ context.Context, j model.Journal) error {
	if j.ID == "" {
		return errors.New("journal ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals[j.ID] = j
	return nil
}

// Journal returns a journal by ID.
func (s *Store) Journal(_ context.Context, journalID string) (model.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.journals[journalID]
	if !ok {
		return model.Journal{}, fmt.Errorf("journal %s: %w", journalID, ErrNotFound)
	}
	return j, nil
}

// Journals returns all journals ordered by ID.
func (s *Store) Journals(_ context.Context) []model.Journal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Journal, 0, len(s.journals))
	for _, j := range s.journals {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// UpdateJournal replaces an existing journal.
func (s *Store) UpdateJournal(_ context.Context, j model.Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.journals[j.ID]; !ok {
		return fmt.Errorf("journal %s: %w", j.ID, ErrNotFound)
	}
	s.journals[j.ID] = j
	return nil
}

// --- Accounts ---

// PutAccount inserts or replaces an online account.
func (s *Store) PutAccount(_ context.Context, a model.Account) error {
	if a.ID == "" {
		return errors.New("account ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

// Account returns an online account by ID.
func (s *Store) Account(_ context.Context, accountID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return cloneAccount(a), nil
}

// Accounts returns all online accounts ordered by ID.
func (s *Store) Accounts(_ context.Context) []model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// UpdateAccount replaces an existing online account.
func (s *Store) UpdateAccount(_ context.Context, a model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("account %s: %w", a.ID, ErrNotFound)
	}
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

// --- Statements ---

// Statements returns the journal's statements ordered by date.
func (s *Store) Statements(_ context.Context, journalID string) ([]model.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statementsLocked(journalID, time.Time{}), nil
}

// StatementsFrom returns the journal's statements dated on or after from,
// ordered by date.
func (s *Store) StatementsFrom(_ context.Context, journalID string, from time.Time) ([]model.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statementsLocked(journalID, from), nil
}

// CountStatements returns the number of statements of a journal.
func (s *Store) CountStatements(_ context.Context, journalID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.statements {
		if st.JournalID == journalID {
			n++
		}
	}
	return n, nil
}

// LastStatement returns the chronologically last statement of a journal.
func (s *Store) LastStatement(_ context.Context, journalID string) (model.Statement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stmts := s.statementsLocked(journalID, time.Time{})
	if len(stmts) == 0 {
		return model.Statement{}, false, nil
	}
	return stmts[len(stmts)-1], true, nil
}

// Statement returns a statement by ID.
func (s *Store) Statement(_ context.Context, statementID string) (model.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statements[statementID]
	if !ok {
		return model.Statement{}, fmt.Errorf("statement %s: %w", statementID, ErrNotFound)
	}
	return st, nil
}

// StatementByName returns a statement by its sequence name.
func (s *Store) StatementByName(_ context.Context, name string) (model.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.statements {
		if st.Name == name {
			return st, nil
		}
	}
	return model.Statement{}, fmt.Errorf("statement %q: %w", name, ErrNotFound)
}

// CreateStatement stores a new statement. ID and Name are assigned when
// empty; State defaults to draft.
func (s *Store) CreateStatement(_ context.Context, st model.Statement) (model.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	journal, ok := s.journals[st.JournalID]
	if !ok {
		return model.Statement{}, fmt.Errorf("journal %s: %w", st.JournalID, ErrNotFound)
	}

	var names []string
	for _, other := range s.statements {
		if other.JournalID != st.JournalID {
			continue
		}
		if other.Date.Equal(st.Date) {
			return model.Statement{}, fmt.Errorf("journal %s on %s: %w", journal.ID, st.Date.Format(time.DateOnly), ErrDuplicateStatementDate)
		}
		names = append(names, other.Name)
	}

	if st.ID == "" {
		st.ID = id.New()
	}
	if st.Name == "" {
		st.Name = id.FormatStatementName(journal.Code, st.Date, id.NextSeq(names, journal.Code, st.Date))
	}
	if st.State == "" {
		st.State = model.StateDraft
	}
	s.statements[st.ID] = st
	return st, nil
}

// UpdateStatement replaces an existing statement.
func (s *Store) UpdateStatement(_ context.Context, st model.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statements[st.ID]; !ok {
		return fmt.Errorf("statement %s: %w", st.ID, ErrNotFound)
	}
	s.statements[st.ID] = st
	return nil
}

func (s *Store) statementsLocked(journalID string, from time.Time) []model.Statement {
	var out []model.Statement
	for _, st := range s.statements {
		if st.JournalID != journalID || st.Date.Before(from) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].Date.Equal(out[k].Date) {
			return out[i].Date.Before(out[k].Date)
		}
		return out[i].Name < out[k].Name
	})
	return out
}

// --- Lines ---

// Lines returns the lines of a statement in insertion order.
func (s *Store) Lines(_ context.Context, statementID string) ([]model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linesLocked(statementID), nil
}

// Line returns a line by ID.
func (s *Store) Line(_ context.Context, lineID string) (model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[lineID]
	if !ok {
		return model.Line{}, fmt.Errorf("line %s: %w", lineID, ErrNotFound)
	}
	return l, nil
}

// CreateLines appends lines to a statement. IDs, sequence numbers and the
// journal reference are assigned by the store.
func (s *Store) CreateLines(_ context.Context, statementID string, lines []model.Line) ([]model.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return nil, fmt.Errorf("statement %s: %w", statementID, ErrNotFound)
	}

	used := make(map[string]bool)
	for _, l := range s.lines {
		if l.JournalID == st.JournalID && l.TransactionID != "" {
			used[l.TransactionID] = true
		}
	}

	existing := s.linesLocked(statementID)
	seq := 0
	if len(existing) > 0 {
		seq = existing[len(existing)-1].Sequence
	}

	created := make([]model.Line, 0, len(lines))
	for _, l := range lines {
		if l.TransactionID != "" {
			if used[l.TransactionID] {
				return nil, fmt.Errorf("%s in journal %s: %w", l.TransactionID, st.JournalID, ErrDuplicateTransaction)
			}
			used[l.TransactionID] = true
		}
		seq++
		l.ID = id.New()
		l.StatementID = st.ID
		l.JournalID = st.JournalID
		l.Sequence = seq
		created = append(created, l)
	}
	for _, l := range created {
		s.lines[l.ID] = l
	}
	return created, nil
}

// UpdateLine replaces an existing line.
func (s *Store) UpdateLine(_ context.Context, l model.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[l.ID]; !ok {
		return fmt.Errorf("line %s: %w", l.ID, ErrNotFound)
	}
	s.lines[l.ID] = l
	return nil
}

// ExistingIdentifiers reports which of ids are already used by lines of the
// journal.
func (s *Store) ExistingIdentifiers(_ context.Context, journalID string, ids []string) (map[string]bool, error) {
	want := make(map[string]bool, len(ids))
	for _, i := range ids {
		want[i] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]bool)
	for _, l := range s.lines {
		if l.JournalID == journalID && want[l.TransactionID] {
			found[l.TransactionID] = true
		}
	}
	return found, nil
}

func (s *Store) linesLocked(statementID string) []model.Line {
	var out []model.Line
	for _, l := range s.lines {
		if l.StatementID == statementID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Sequence < out[k].Sequence })
	return out
}

// --- Counterparties ---

// CreateCounterparty stores a new counterparty, assigning an ID when empty.
func (s *Store) CreateCounterparty(_ context.Context, cp model.Counterparty) (model.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.ID == "" {
		cp.ID = id.New()
	}
	if _, ok := s.counterparties[cp.ID]; ok {
		return model.Counterparty{}, fmt.Errorf("counterparty %s already exists", cp.ID)
	}
	s.counterparties[cp.ID] = cp
	return cp, nil
}

// Counterparty returns a counterparty by ID.
func (s *Store) Counterparty(_ context.Context, counterpartyID string) (model.Counterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.counterparties[counterpartyID]
	if !ok {
		return model.Counterparty{}, fmt.Errorf("counterparty %s: %w", counterpartyID, ErrNotFound)
	}
	return cp, nil
}

// Counterparties returns all counterparties ordered by ID.
func (s *Store) Counterparties(_ context.Context) []model.Counterparty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Counterparty, 0, len(s.counterparties))
	for _, cp := range s.counterparties {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// UpdateCounterparty replaces an existing counterparty.
func (s *Store) UpdateCounterparty(_ context.Context, cp model.Counterparty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counterparties[cp.ID]; !ok {
		return fmt.Errorf("counterparty %s: %w", cp.ID, ErrNotFound)
	}
	s.counterparties[cp.ID] = cp
	return nil
}

// CounterpartiesByHint maps each hint to the counterparty remembering it.
// When several remember the same hint the lowest ID wins.
func (s *Store) CounterpartiesByHint(_ context.Context, hints []string) (map[string]string, error) {
	want := make(map[string]bool, len(hints))
	for _, h := range hints {
		want[h] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, cp := range s.counterparties {
		if cp.RememberedHint == "" || !want[cp.RememberedHint] {
			continue
		}
		if prev, ok := out[cp.RememberedHint]; ok && prev < cp.ID {
			continue
		}
		out[cp.RememberedHint] = cp.ID
	}
	return out, nil
}

func cloneAccount(a model.Account) model.Account {
	a.JournalIDs = append([]string(nil), a.JournalIDs...)
	return a
}
