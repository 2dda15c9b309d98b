package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/chain"
	"github.com/cleared-dev/banksync/internal/model"
)

func newStatementsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statements",
		Short: "Inspect statement chains",
	}
	cmd.AddCommand(
		newStatementsListCommand(opts),
		newStatementsShowCommand(opts),
		newStatementsVerifyCommand(opts),
	)
	return cmd
}

func newStatementsListCommand(opts *globalOptions) *cobra.Command {
	var journalID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List statements in date order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatementsList(cmd.Context(), opts, journalID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&journalID, "journal", "", "only list statements of this journal")
	return cmd
}

func runStatementsList(ctx context.Context, opts *globalOptions, journalID string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	journals, err := selectJournals(ctx, ws, journalID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDATE\tEND\tSTATE\tSTART\tENDING\tLINES")
	for _, j := range journals {
		stmts, err := ws.store.Statements(ctx, j.ID)
		if err != nil {
			return err
		}
		places := decimalPlaces(j.Rounding)
		for _, st := range stmts {
			lines, err := ws.store.Lines(ctx, st.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				st.Name,
				st.Date.Format(time.DateOnly),
				formatOptionalDate(st.EndDate),
				st.State,
				st.BalanceStart.StringFixed(places),
				st.BalanceEndReal.StringFixed(places),
				len(lines),
			)
		}
	}
	return tw.Flush()
}

func newStatementsShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the lines of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatementsShow(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func runStatementsShow(ctx context.Context, opts *globalOptions, name string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	st, err := ws.store.StatementByName(ctx, name)
	if err != nil {
		return err
	}
	journal, err := ws.store.Journal(ctx, st.JournalID)
	if err != nil {
		return err
	}
	lines, err := ws.store.Lines(ctx, st.ID)
	if err != nil {
		return err
	}

	places := decimalPlaces(journal.Rounding)
	fmt.Fprintf(out, "%s (%s) %s -> %s\n", st.Name, st.State, st.BalanceStart.StringFixed(places), st.BalanceEndReal.StringFixed(places))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDATE\tAMOUNT\tDESCRIPTION\tCOUNTERPARTY\tHINT")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.Date.Format(time.DateOnly),
			l.Amount.StringFixed(places),
			l.Description,
			l.CounterpartyID,
			l.CounterpartyHint,
		)
	}
	return tw.Flush()
}

func newStatementsVerifyCommand(opts *globalOptions) *cobra.Command {
	var journalID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every statement starts where its predecessor ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatementsVerify(cmd.Context(), opts, journalID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&journalID, "journal", "", "only verify this journal")
	return cmd
}

func runStatementsVerify(ctx context.Context, opts *globalOptions, journalID string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	journals, err := selectJournals(ctx, ws, journalID)
	if err != nil {
		return err
	}

	c := chain.New(ws.store, ws.logger)
	total := 0
	for _, j := range journals {
		violations, err := c.VerifyJournal(ctx, j.ID)
		if err != nil {
			return err
		}
		for _, v := range violations {
			fmt.Fprintf(out, "%s: %v\n", j.ID, v)
		}
		total += len(violations)
	}
	if total > 0 {
		return fmt.Errorf("%d chain violation(s)", total)
	}
	fmt.Fprintf(out, "OK: %d journal(s) verified\n", len(journals))
	return nil
}

func selectJournals(ctx context.Context, ws *workspace, journalID string) ([]model.Journal, error) {
	if journalID == "" {
		return ws.store.Journals(ctx), nil
	}
	j, err := ws.store.Journal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	return []model.Journal{j}, nil
}

// decimalPlaces returns the number of decimals a journal's rounding unit
// shows: 0.01 gives 2, 1 gives 0. Unset rounding shows cents.
func decimalPlaces(rounding decimal.Decimal) int32 {
	if rounding.IsZero() {
		return 2
	}
	if exp := rounding.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

func formatOptionalDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
