package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/accounts"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/gitops"
	"github.com/cleared-dev/banksync/internal/ledger"
	"github.com/cleared-dev/banksync/internal/model"
)

func newInitCommand() *cobra.Command {
	var name string
	var grouping string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new banksync repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			mode, err := model.ParseGroupingMode(grouping)
			if err != nil {
				return err
			}

			return runInit(cmd.Context(), absDir, name, mode)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&grouping, "grouping", string(model.DefaultGrouping), "statement grouping of the bank journal (none, day, week, bimonthly, month)")

	return cmd
}

func runInit(ctx context.Context, dir, name string, grouping model.GroupingMode) error {
	dirs := []string{
		"accounts",
		"ledger",
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default(name, grouping)
	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Journals, accounts and empty ledger files.
	reg := accounts.DefaultRegistry(grouping)
	store := ledger.NewStore()
	for _, j := range reg.Journals() {
		if err := store.PutJournal(ctx, j); err != nil {
			return err
		}
	}
	for _, a := range reg.Accounts() {
		if err := store.PutAccount(ctx, a); err != nil {
			return err
		}
	}
	if err := store.Save(ctx, dir); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}

	gitignore := "exports/\n*.prom\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	if err := gitops.Init(ctx, dir); err != nil {
		return fmt.Errorf("git init: %w", err)
	}

	hash, err := gitops.CommitAll(ctx, dir, "init: Initialize "+name, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	fmt.Printf("Initialized banksync repository at %s (%s)\n", dir, hash)
	return nil
}
