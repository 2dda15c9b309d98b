package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/gitops"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/observability"
	"github.com/cleared-dev/banksync/internal/synclog"
)

// workspace is a loaded banksync repository.
type workspace struct {
	root   string
	cfg    *config.Config
	store  *ledger.Store
	logger *zap.Logger
}

func openWorkspace(ctx context.Context, opts *globalOptions) (*workspace, error) {
	root, err := filepath.Abs(opts.repo)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return nil, err
	}

	level := opts.logLevel
	if level == "" {
		level = cfg.Sync.LogLevel
	}
	logger, err := observability.NewLogger(level)
	if err != nil {
		return nil, err
	}

	store, err := ledger.Load(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	return &workspace{root: root, cfg: cfg, store: store, logger: logger}, nil
}

func (w *workspace) close() {
	_ = w.logger.Sync()
}

// persist saves the ledger and commits.
func (w *workspace) persist(ctx context.Context, message string, entries []synclog.Entry) (string, error) {
	if err := w.save(ctx); err != nil {
		return "", err
	}
	return w.commit(ctx, message, entries)
}

func (w *workspace) save(ctx context.Context) error {
	if err := w.store.Save(ctx, w.root); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// commit commits the repository when auto-commit is on. The log entries are
// stamped with the resulting commit and appended afterwards, so they land in
// the next commit.
func (w *workspace) commit(ctx context.Context, message string, entries []synclog.Entry) (string, error) {
	var hash string
	if w.cfg.Git.AutoCommit && gitops.IsRepo(w.root) {
		changed, err := gitops.HasChanges(ctx, w.root)
		if err != nil {
			return "", err
		}
		if changed {
			hash, err = gitops.CommitAll(ctx, w.root, message, w.cfg.Git.AuthorName, w.cfg.Git.AuthorEmail)
			if err != nil {
				return "", fmt.Errorf("committing: %w", err)
			}
		}
	}

	if err := synclog.Append(w.root, synclog.WithCommit(entries, hash)); err != nil {
		w.logger.Warn("failed to write sync log", zap.Error(err))
	}
	return hash, nil
}

func newEntry(journal, action, details, statement string) synclog.Entry {
	return synclog.Entry{
		Timestamp: time.Now().UTC(),
		Journal:   journal,
		Action:    action,
		Details:   details,
		Statement: statement,
	}
}
