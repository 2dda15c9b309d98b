// Package ingest folds provider transactions into the statement chains of
// the journals an online account feeds.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/banksync/internal/bucket"
	"github.com/cleared-dev/banksync/internal/chain"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/observability"
	"github.com/cleared-dev/banksync/internal/partner"
)

// OpeningDescription labels the synthetic line of an opening statement.
const OpeningDescription = "Opening statement: first synchronization"

// Store is the ledger storage needed by ingestion.
type Store interface {
	chain.Store
	partner.Store

	UpdateJournal(ctx context.Context, j model.Journal) error
	Account(ctx context.Context, id string) (model.Account, error)
	UpdateAccount(ctx context.Context, a model.Account) error

	ExistingIdentifiers(ctx context.Context, journalID string, ids []string) (map[string]bool, error)
	CountStatements(ctx context.Context, journalID string) (int, error)
	StatementsFrom(ctx context.Context, journalID string, from time.Time) ([]model.Statement, error)
	LastStatement(ctx context.Context, journalID string) (model.Statement, bool, error)
	CreateStatement(ctx context.Context, st model.Statement) (model.Statement, error)
	CreateLines(ctx context.Context, statementID string, lines []model.Line) ([]model.Line, error)

	// Atomic runs fn so that an error undoes every change fn made to the
	// journal and the accounts feeding it.
	Atomic(ctx context.Context, journalID string, fn func(ctx context.Context) error) error
}

// Service ingests transaction batches.
type Service struct {
	store   Store
	chain   *chain.Chain
	locks   *Locks
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewService creates an ingestion Service.
func NewService(store Store, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		chain:   chain.New(store, logger),
		locks:   &Locks{},
		metrics: metrics,
		logger:  logger,
	}
}

// pass tallies one journal pass; metrics are only recorded once it commits.
type pass struct {
	journal    string
	lines      []model.Line
	duplicates int
	created    int
	reopened   int
	opening    int
}

// Ingest folds txns into every journal of account and returns the lines it
// created. account.Balance is the provider's current balance; the last
// statement of each touched journal ends on it.
//
// Journals are processed one at a time, each under its own lock and atomic
// section: a failing journal leaves no trace, while journals already done
// stay committed. Ingesting the same batch again creates nothing.
func (s *Service) Ingest(ctx context.Context, txns []model.Transaction, account model.Account) ([]model.Line, error) {
	var all []model.Line
	for _, journalID := range account.JournalIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := s.ingestJournal(ctx, txns, account, journalID)
		if err != nil {
			return nil, fmt.Errorf("ingesting account %s into journal %s: %w", account.ID, journalID, err)
		}
		all = append(all, lines...)
	}
	return all, nil
}

func (s *Service) ingestJournal(ctx context.Context, txns []model.Transaction, account model.Account, journalID string) ([]model.Line, error) {
	unlock := s.locks.Lock(journalID)
	defer unlock()

	start := time.Now()
	p := &pass{journal: journalID}
	err := s.store.Atomic(ctx, journalID, func(ctx context.Context) error {
		return s.apply(ctx, p, txns, account)
	})
	s.metrics.RecordIngest(journalID, time.Since(start))
	if err != nil {
		s.metrics.IncrIngestError(journalID)
		s.logger.Error("ingestion rolled back",
			zap.String("journal", journalID),
			zap.String("account", account.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordLines(journalID, len(p.lines))
	s.metrics.RecordDuplicates(journalID, p.duplicates)
	s.metrics.RecordStatement(journalID, observability.StatementCreated, p.created)
	s.metrics.RecordStatement(journalID, observability.StatementReopened, p.reopened)
	s.metrics.RecordStatement(journalID, observability.StatementOpening, p.opening)
	s.logger.Info("ingested transactions",
		zap.String("journal", journalID),
		zap.String("account", account.ID),
		zap.Int("received", len(txns)),
		zap.Int("lines", len(p.lines)),
		zap.Int("duplicates", p.duplicates),
		zap.Int("statements_created", p.created),
		zap.Int("statements_reopened", p.reopened),
		zap.Bool("opening", p.opening > 0),
	)
	return p.lines, nil
}

func (s *Service) apply(ctx context.Context, p *pass, txns []model.Transaction, account model.Account) error {
	journal, err := s.store.Journal(ctx, p.journal)
	if err != nil {
		return err
	}
	if journal.StatementsSource != model.SourceOnlineSync {
		journal.StatementsSource = model.SourceOnlineSync
		if err := s.store.UpdateJournal(ctx, journal); err != nil {
			return fmt.Errorf("marking journal source: %w", err)
		}
	}
	if len(txns) == 0 {
		return nil
	}
	mode := journal.Grouping
	if mode == "" {
		mode = model.DefaultGrouping
	}

	batch, err := s.fresh(ctx, p.journal, txns)
	if err != nil {
		return err
	}
	p.duplicates = len(txns) - len(batch)

	// Over the raw batch: an all-duplicate sync still advances the sync dates.
	maxDate := latest(txns)
	if len(batch) > 0 {
		if err := s.insert(ctx, p, journal, mode, batch, account, maxDate); err != nil {
			return err
		}
	}

	stored, err := s.store.Account(ctx, account.ID)
	if err != nil {
		return err
	}
	stored.Balance = account.Balance
	stored.LastSync = maxDate
	if err := s.store.UpdateAccount(ctx, stored); err != nil {
		return fmt.Errorf("updating account sync date: %w", err)
	}

	journal.LastSyncedAt = maxDate
	if err := s.store.UpdateJournal(ctx, journal); err != nil {
		return fmt.Errorf("updating journal sync date: %w", err)
	}
	return nil
}

// fresh drops transactions whose identifier the journal already holds or
// that repeat an earlier identifier of the batch, then sorts the rest by
// date, keeping feed order on ties.
func (s *Service) fresh(ctx context.Context, journalID string, txns []model.Transaction) ([]model.Transaction, error) {
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.Identifier
	}
	existing, err := s.store.ExistingIdentifiers(ctx, journalID, ids)
	if err != nil {
		return nil, fmt.Errorf("checking existing transactions: %w", err)
	}

	seen := make(map[string]bool, len(txns))
	batch := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if existing[t.Identifier] || seen[t.Identifier] {
			continue
		}
		seen[t.Identifier] = true
		batch = append(batch, t)
	}
	sort.SliceStable(batch, func(i, k int) bool {
		return bucket.Day(batch[i].Date).Before(bucket.Day(batch[k].Date))
	})
	return batch, nil
}

func (s *Service) insert(ctx context.Context, p *pass, journal model.Journal, mode model.GroupingMode, batch []model.Transaction, account model.Account, maxDate time.Time) error {
	hints := make([]string, len(batch))
	for i, t := range batch {
		hints[i] = t.CounterpartyHint
	}
	counterparties, err := partner.ResolveHints(ctx, s.store, hints)
	if err != nil {
		return err
	}

	minBucket := bucket.WindowStart(batch[0].Date, mode, maxDate)
	total := decimal.Zero
	for _, t := range batch {
		total = total.Add(t.Amount)
	}

	count, err := s.store.CountStatements(ctx, journal.ID)
	if err != nil {
		return err
	}
	if gap := account.Balance.Sub(total); count == 0 && !journal.IsZeroAmount(gap) {
		if err := s.open(ctx, p, journal, account, minBucket.AddDate(0, 0, -1), gap); err != nil {
			return err
		}
	}

	stmts, err := s.store.StatementsFrom(ctx, journal.ID, minBucket)
	if err != nil {
		return fmt.Errorf("loading statements: %w", err)
	}
	byDate := make(map[string]model.Statement, len(stmts))
	for _, st := range stmts {
		byDate[st.Date.Format(time.DateOnly)] = st
	}

	appends := make(map[string][]model.Line)
	pending := make(map[string][]model.Line)
	var keys []time.Time
	for _, t := range batch {
		key := bucket.Key(t.Date, mode, maxDate)
		line := model.Line{
			AccountID:        account.ID,
			TransactionID:    t.Identifier,
			Date:             bucket.Day(t.Date),
			Description:      t.Description,
			Amount:           t.Amount,
			CounterpartyID:   t.CounterpartyID,
			CounterpartyHint: t.CounterpartyHint,
		}
		if id, ok := counterparties[t.CounterpartyHint]; ok {
			line.CounterpartyID = id
		}

		k := key.Format(time.DateOnly)
		if st, ok := byDate[k]; ok {
			appends[st.ID] = append(appends[st.ID], line)
			continue
		}
		if _, ok := pending[k]; !ok {
			keys = append(keys, key)
		}
		pending[k] = append(pending[k], line)
	}

	var targets []model.Statement
	for _, st := range stmts {
		if len(appends[st.ID]) > 0 {
			targets = append(targets, st)
		}
	}
	if err := s.appendLines(ctx, p, journal.ID, targets, appends); err != nil {
		return err
	}
	if err := s.createStatements(ctx, p, journal.ID, mode, keys, pending); err != nil {
		return err
	}

	if len(targets) == 0 && len(keys) == 0 {
		return nil
	}
	last, ok, err := s.store.LastStatement(ctx, journal.ID)
	if err != nil {
		return err
	}
	if ok && !last.BalanceEndReal.Equal(account.Balance) {
		s.logger.Debug("last statement set to provider balance",
			zap.String("statement", last.Name),
			zap.String("computed", last.BalanceEndReal.String()),
			zap.String("balance", account.Balance.String()),
		)
		last.BalanceEndReal = account.Balance
		if err := s.store.UpdateStatement(ctx, last); err != nil {
			return fmt.Errorf("setting provider balance on %s: %w", last.Name, err)
		}
	}
	return nil
}

// open creates the posted opening statement that absorbs the history
// missing before the first synchronization.
func (s *Service) open(ctx context.Context, p *pass, journal model.Journal, account model.Account, date time.Time, gap decimal.Decimal) error {
	st, err := s.store.CreateStatement(ctx, model.Statement{
		JournalID:      journal.ID,
		Date:           date,
		BalanceEndReal: gap,
	})
	if err != nil {
		return fmt.Errorf("creating opening statement: %w", err)
	}
	lines, err := s.store.CreateLines(ctx, st.ID, []model.Line{{
		AccountID:   account.ID,
		Date:        date,
		Description: OpeningDescription,
		Amount:      gap,
	}})
	if err != nil {
		return fmt.Errorf("creating opening line: %w", err)
	}
	if err := s.chain.Post(ctx, []string{st.ID}); err != nil {
		return err
	}
	p.lines = append(p.lines, lines...)
	p.opening++
	return nil
}

// appendLines adds lines to existing statements, which are reopened, have
// the chain recomputed from the earliest of them, and are posted again.
func (s *Service) appendLines(ctx context.Context, p *pass, journalID string, targets []model.Statement, appends map[string][]model.Line) error {
	if len(targets) == 0 {
		return nil
	}
	ids := make([]string, len(targets))
	for i, st := range targets {
		ids[i] = st.ID
	}

	if err := s.chain.Reopen(ctx, journalID, ids); err != nil {
		return err
	}
	for _, st := range targets {
		lines, err := s.store.CreateLines(ctx, st.ID, appends[st.ID])
		if err != nil {
			return fmt.Errorf("appending to %s: %w", st.Name, err)
		}
		p.lines = append(p.lines, lines...)
	}
	if _, err := s.chain.RecomputeFrom(ctx, journalID, targets[0].Date); err != nil {
		return err
	}
	if _, err := s.chain.Settle(ctx, targets[len(targets)-1].ID); err != nil {
		return err
	}
	if err := s.chain.Post(ctx, ids); err != nil {
		return err
	}
	p.reopened += len(targets)
	return nil
}

// createStatements opens one statement per new bucket key, fills it, links
// it into the chain and posts it.
func (s *Service) createStatements(ctx context.Context, p *pass, journalID string, mode model.GroupingMode, keys []time.Time, pending map[string][]model.Line) error {
	if len(keys) == 0 {
		return nil
	}
	earliest := keys[0]
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		st := model.Statement{JournalID: journalID, Date: key}
		switch mode {
		case model.GroupWeek, model.GroupBimonthly, model.GroupMonth:
			st.EndDate = bucket.End(key, mode)
		}
		st, err := s.store.CreateStatement(ctx, st)
		if err != nil {
			return fmt.Errorf("creating statement for %s: %w", key.Format(time.DateOnly), err)
		}
		lines, err := s.store.CreateLines(ctx, st.ID, pending[key.Format(time.DateOnly)])
		if err != nil {
			return fmt.Errorf("filling %s: %w", st.Name, err)
		}
		p.lines = append(p.lines, lines...)
		ids = append(ids, st.ID)
		if key.Before(earliest) {
			earliest = key
		}
	}

	if _, err := s.chain.RecomputeFrom(ctx, journalID, earliest); err != nil {
		return err
	}
	if err := s.chain.Post(ctx, ids); err != nil {
		return err
	}
	p.created += len(keys)
	return nil
}

func latest(txns []model.Transaction) time.Time {
	var out time.Time
	for _, t := range txns {
		if d := bucket.Day(t.Date); d.After(out) {
			out = d
		}
	}
	return out
}
