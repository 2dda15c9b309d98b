package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cleared-dev/banksync/internal/accounts"
	"github.com/cleared-dev/banksync/internal/model"
)

const (
	ledgerDir          = "ledger"
	statementsFile     = "statements.csv"
	linesFile          = "lines.csv"
	counterpartiesFile = "counterparties.csv"
)

// Load builds a Store from the accounts registry and the ledger CSV files of
// a repo root. Missing ledger files are treated as empty.
func Load(ctx context.Context, repoRoot string) (*Store, error) {
	reg, err := accounts.Load(repoRoot)
	if err != nil {
		return nil, err
	}

	s := NewStore()
	for _, j := range reg.Journals() {
		if err := s.PutJournal(ctx, j); err != nil {
			return nil, err
		}
	}
	for _, a := range reg.Accounts() {
		if err := s.PutAccount(ctx, a); err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(repoRoot, ledgerDir)

	stmts, err := readFile(filepath.Join(dir, statementsFile), ReadStatements)
	if err != nil {
		return nil, err
	}
	lines, err := readFile(filepath.Join(dir, linesFile), ReadLines)
	if err != nil {
		return nil, err
	}
	cps, err := readFile(filepath.Join(dir, counterpartiesFile), ReadCounterparties)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stmts {
		if _, ok := s.journals[st.JournalID]; !ok {
			return nil, fmt.Errorf("statement %s references unknown journal %s", st.Name, st.JournalID)
		}
		s.statements[st.ID] = st
	}
	for _, l := range lines {
		if _, ok := s.statements[l.StatementID]; !ok {
			return nil, fmt.Errorf("line %s references unknown statement %s", l.ID, l.StatementID)
		}
		s.lines[l.ID] = l
	}
	for _, cp := range cps {
		s.counterparties[cp.ID] = cp
	}
	return s, nil
}

// Save writes the accounts registry and the ledger CSV files under repoRoot.
// Rows are ordered so that diffs between syncs stay small.
func (s *Store) Save(ctx context.Context, repoRoot string) error {
	reg := accounts.NewService(s.Journals(ctx), s.Accounts(ctx))
	if err := reg.Save(repoRoot); err != nil {
		return err
	}

	dir := filepath.Join(repoRoot, ledgerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	s.mu.RLock()
	stmts := make([]model.Statement, 0, len(s.statements))
	for _, st := range s.statements {
		stmts = append(stmts, st)
	}
	lines := make([]model.Line, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l)
	}
	s.mu.RUnlock()
	cps := s.Counterparties(ctx)

	sort.Slice(stmts, func(i, k int) bool {
		if stmts[i].JournalID != stmts[k].JournalID {
			return stmts[i].JournalID < stmts[k].JournalID
		}
		if !stmts[i].Date.Equal(stmts[k].Date) {
			return stmts[i].Date.Before(stmts[k].Date)
		}
		return stmts[i].Name < stmts[k].Name
	})
	order := make(map[string]int, len(stmts))
	for i, st := range stmts {
		order[st.ID] = i
	}
	sort.Slice(lines, func(i, k int) bool {
		if lines[i].StatementID != lines[k].StatementID {
			return order[lines[i].StatementID] < order[lines[k].StatementID]
		}
		return lines[i].Sequence < lines[k].Sequence
	})

	if err := writeFile(filepath.Join(dir, statementsFile), func(w io.Writer) error { return WriteStatements(w, stmts) }); err != nil {
		return fmt.Errorf("writing statements: %w", err)
	}
	if err := writeFile(filepath.Join(dir, linesFile), func(w io.Writer) error { return WriteLines(w, lines) }); err != nil {
		return fmt.Errorf("writing lines: %w", err)
	}
	if err := writeFile(filepath.Join(dir, counterpartiesFile), func(w io.Writer) error { return WriteCounterparties(w, cps) }); err != nil {
		return fmt.Errorf("writing counterparties: %w", err)
	}
	return nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// writeFile writes through a temp file and renames it into place, so a
// failed save never leaves a truncated CSV behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
