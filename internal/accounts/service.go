package accounts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cleared-dev/banksync/internal/model"
)

const (
	accountsDir  = "accounts"
	journalsFile = "journals.csv"
	onlineFile   = "online-accounts.csv"
)

// Service provides in-memory lookup over journals and the online accounts
// feeding them.
type Service struct {
	journals    []model.Journal
	accounts    []model.Account
	journalByID map[string]model.Journal
	accountByID map[string]model.Account
}

// NewService creates a Service from journals and accounts.
func NewService(journals []model.Journal, accounts []model.Account) *Service {
	journalByID := make(map[string]model.Journal, len(journals))
	for _, j := range journals {
		journalByID[j.ID] = j
	}
	accountByID := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		accountByID[a.ID] = a
	}
	return &Service{
		journals:    journals,
		accounts:    accounts,
		journalByID: journalByID,
		accountByID: accountByID,
	}
}

// Load reads accounts/journals.csv and accounts/online-accounts.csv from a
// repo root.
func Load(repoRoot string) (*Service, error) {
	jf, err := os.Open(filepath.Join(repoRoot, accountsDir, journalsFile))
	if err != nil {
		return nil, fmt.Errorf("opening journals: %w", err)
	}
	defer jf.Close()

	journals, err := ReadJournals(jf)
	if err != nil {
		return nil, fmt.Errorf("reading journals: %w", err)
	}

	af, err := os.Open(filepath.Join(repoRoot, accountsDir, onlineFile))
	if err != nil {
		return nil, fmt.Errorf("opening online accounts: %w", err)
	}
	defer af.Close()

	accts, err := ReadAccounts(af)
	if err != nil {
		return nil, fmt.Errorf("reading online accounts: %w", err)
	}

	svc := NewService(journals, accts)
	if err := svc.Check(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Journals returns all journals.
func (s *Service) Journals() []model.Journal {
	return s.journals
}

// Accounts returns all online accounts.
func (s *Service) Accounts() []model.Account {
	return s.accounts
}

// Journal returns a journal by ID.
func (s *Service) Journal(id string) (model.Journal, bool) {
	j, ok := s.journalByID[id]
	return j, ok
}

// Account returns an online account by ID.
func (s *Service) Account(id string) (model.Account, bool) {
	a, ok := s.accountByID[id]
	return a, ok
}

// Exists reports whether an online account ID exists.
func (s *Service) Exists(id string) bool {
	_, ok := s.accountByID[id]
	return ok
}

// JournalsOf returns the journals fed by an online account.
func (s *Service) JournalsOf(accountID string) []model.Journal {
	a, ok := s.accountByID[accountID]
	if !ok {
		return nil
	}
	var result []model.Journal
	for _, jid := range a.JournalIDs {
		if j, ok := s.journalByID[jid]; ok {
			result = append(result, j)
		}
	}
	return result
}

// Check reports accounts that reference unknown journals and journals whose
// code is shared with another journal.
func (s *Service) Check() error {
	codes := make(map[string]string)
	for _, j := range s.journals {
		if other, ok := codes[j.Code]; ok {
			return fmt.Errorf("journals %s and %s share code %q", other, j.ID, j.Code)
		}
		codes[j.Code] = j.ID
	}
	for _, a := range s.accounts {
		if len(a.JournalIDs) == 0 {
			return fmt.Errorf("account %s has no journal", a.ID)
		}
		for _, jid := range a.JournalIDs {
			if _, ok := s.journalByID[jid]; !ok {
				return fmt.Errorf("account %s references unknown journal %s", a.ID, jid)
			}
		}
	}
	return nil
}

// Save writes accounts/journals.csv and accounts/online-accounts.csv.
func (s *Service) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, accountsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	if err := writeFile(filepath.Join(dir, journalsFile), func(f *os.File) error {
		return WriteJournals(f, s.journals)
	}); err != nil {
		return fmt.Errorf("writing journals: %w", err)
	}
	if err := writeFile(filepath.Join(dir, onlineFile), func(f *os.File) error {
		return WriteAccounts(f, s.accounts)
	}); err != nil {
		return fmt.Errorf("writing online accounts: %w", err)
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
