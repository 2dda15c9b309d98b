package ledger

import (
	"context"
	"slices"

	"github.com/cleared-dev/banksync/internal/model"
)

type journalSnapshot struct {
	journal    model.Journal
	hasJournal bool
	accounts   []model.Account
	statements []model.Statement
	lines      []model.Line
}

// Atomic runs fn as one unit of work on a journal. If fn returns an error,
// the journal, its statements and lines, and the accounts feeding it are
// restored to their state before fn ran. Records of other journals are left
// alone, so units on different journals may run concurrently. Callers must
// serialize units on the same journal.
func (s *Store) Atomic(ctx context.Context, journalID string, fn func(ctx context.Context) error) error {
	snap := s.snapshot(journalID)
	if err := fn(ctx); err != nil {
		s.restore(journalID, snap)
		return err
	}
	return nil
}

func (s *Store) snapshot(journalID string) journalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap journalSnapshot
	snap.journal, snap.hasJournal = s.journals[journalID]
	for _, a := range s.accounts {
		if slices.Contains(a.JournalIDs, journalID) {
			snap.accounts = append(snap.accounts, cloneAccount(a))
		}
	}
	for _, st := range s.statements {
		if st.JournalID == journalID {
			snap.statements = append(snap.statements, st)
		}
	}
	for _, l := range s.lines {
		if l.JournalID == journalID {
			snap.lines = append(snap.lines, l)
		}
	}
	return snap
}

func (s *Store) restore(journalID string, snap journalSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.hasJournal {
		s.journals[journalID] = snap.journal
	}
	for _, a := range snap.accounts {
		s.accounts[a.ID] = a
	}
	for key, st := range s.statements {
		if st.JournalID == journalID {
			delete(s.statements, key)
		}
	}
	for key, l := range s.lines {
		if l.JournalID == journalID {
			delete(s.lines, key)
		}
	}
	for _, st := range snap.statements {
		s.statements[st.ID] = st
	}
	for _, l := range snap.lines {
		s.lines[l.ID] = l
	}
}
