package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/importer"
	"github.com/cleared-dev/banksync/internal/ingest"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/observability"
	"github.com/cleared-dev/banksync/internal/synclog"
)

func newSyncCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ingest the feed files waiting in import/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

// feedJob is one feed file bound to its account.
type feedJob struct {
	file importer.FileInfo
	feed config.Feed
}

func runSync(ctx context.Context, opts *globalOptions, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	files, err := importer.Scan(ws.root)
	if err != nil {
		return err
	}

	var entries []synclog.Entry
	byAccount := make(map[string][]feedJob)
	for _, f := range files {
		feed, ok := ws.cfg.FeedFor(f.Name)
		if !ok {
			ws.logger.Warn("no feed configured for file", zap.String("file", f.Name))
			entries = append(entries, newEntry("", synclog.ActionSkip, "file="+f.Name+" reason=no matching feed", ""))
			continue
		}
		if _, err := ws.store.Account(ctx, feed.Account); err != nil {
			return fmt.Errorf("feed %s: %w", f.Name, err)
		}
		byAccount[feed.Account] = append(byAccount[feed.Account], feedJob{file: f, feed: feed})
	}

	if len(byAccount) == 0 {
		fmt.Fprintln(out, "No feed files to ingest.")
		if len(entries) > 0 {
			if err := synclog.Append(ws.root, entries); err != nil {
				ws.logger.Warn("failed to write sync log", zap.Error(err))
			}
		}
		return nil
	}

	metrics := observability.NewMetrics()
	svc := ingest.NewService(ws.store, metrics, ws.logger)
	parsers := importer.DefaultRegistry()

	// Accounts sync concurrently; the feeds of one account in name order.
	var (
		mu        sync.Mutex
		processed []string
		touched   = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	for accountID, jobs := range byAccount {
		g.Go(func() error {
			for _, job := range jobs {
				parsed, err := parsers.ParseFile(job.feed.Format, job.file.Path)
				if err != nil {
					return err
				}
				acct, err := ws.store.Account(gctx, accountID)
				if err != nil {
					return err
				}
				if acct.Balance, err = feedBalance(gctx, ws.store, acct, parsed); err != nil {
					return err
				}
				lines, err := svc.Ingest(gctx, parsed.Transactions, acct)
				if err != nil {
					return fmt.Errorf("%s: %w", job.file.Name, err)
				}

				perJournal := make(map[string]int)
				for _, l := range lines {
					perJournal[l.JournalID]++
				}
				mu.Lock()
				processed = append(processed, job.file.Name)
				for _, journalID := range acct.JournalIDs {
					touched[journalID] = true
					entries = append(entries, newEntry(journalID, synclog.ActionIngest,
						fmt.Sprintf("file=%s account=%s received=%d lines=%d", job.file.Name, accountID, len(parsed.Transactions), perJournal[journalID]), ""))
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Feeds only stay in processed/ once the ledger holding them is saved.
	sort.Strings(processed)
	if err := markProcessed(ws, processed); err != nil {
		return err
	}
	if err := ws.save(ctx); err != nil {
		restoreFeeds(ws, processed)
		return err
	}

	if path := ws.cfg.Sync.MetricsFile; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(ws.root, path)
		}
		if err := metrics.WriteTextfile(path); err != nil {
			ws.logger.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
		}
	}

	journals := make([]string, 0, len(touched))
	for j := range touched {
		journals = append(journals, j)
	}
	sort.Strings(journals)

	hash, err := ws.commit(ctx, "import: "+strings.Join(processed, ", "), entries)
	if err != nil {
		return err
	}

	for _, j := range journals {
		s := metrics.Summary(j)
		fmt.Fprintf(out, "%s: %d lines, %d duplicates skipped, %d statements created, %d reopened\n",
			j, s.Lines, s.Duplicates, s.Created, s.Reopened)
		if s.Opening > 0 {
			fmt.Fprintf(out, "%s: opening statement created\n", j)
		}
	}
	if hash != "" {
		fmt.Fprintf(out, "Committed %s\n", hash)
	}
	return nil
}

// markProcessed moves the feeds to import/processed/. On failure the feeds
// already moved are put back.
func markProcessed(ws *workspace, names []string) error {
	for i, name := range names {
		if err := importer.MarkProcessed(ws.root, name); err != nil {
			restoreFeeds(ws, names[:i])
			return err
		}
	}
	return nil
}

func restoreFeeds(ws *workspace, names []string) {
	for _, name := range names {
		if err := importer.Restore(ws.root, name); err != nil {
			ws.logger.Error("feed left in processed", zap.String("file", name), zap.Error(err))
		}
	}
}

// feedBalance returns the balance the account ends on after the feed. Feeds
// without a balance move the stored one by the amounts not yet ingested.
func feedBalance(ctx context.Context, store *ledger.Store, acct model.Account, feed importer.Feed) (decimal.Decimal, error) {
	if feed.HasBalance {
		return feed.Balance, nil
	}
	if len(acct.JournalIDs) == 0 || len(feed.Transactions) == 0 {
		return acct.Balance, nil
	}

	ids := make([]string, len(feed.Transactions))
	for i, t := range feed.Transactions {
		ids[i] = t.Identifier
	}
	known, err := store.ExistingIdentifiers(ctx, acct.JournalIDs[0], ids)
	if err != nil {
		return decimal.Zero, err
	}

	balance := acct.Balance
	seen := make(map[string]bool, len(ids))
	for _, t := range feed.Transactions {
		if known[t.Identifier] || seen[t.Identifier] {
			continue
		}
		seen[t.Identifier] = true
		balance = balance.Add(t.Amount)
	}
	return balance, nil
}
