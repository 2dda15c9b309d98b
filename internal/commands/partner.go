package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/chain"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/partner"
	"github.com/cleared-dev/banksync/internal/synclog"
)

func newPartnerCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partner",
		Short: "Manage counterparties",
	}
	cmd.AddCommand(
		newPartnerAddCommand(opts),
		newPartnerListCommand(opts),
		newPartnerAssignCommand(opts),
	)
	return cmd
}

func newPartnerAddCommand(opts *globalOptions) *cobra.Command {
	var hint string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a counterparty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartnerAdd(cmd.Context(), opts, args[0], hint, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&hint, "hint", "", "feed hint already known to identify this counterparty")
	return cmd
}

func runPartnerAdd(ctx context.Context, opts *globalOptions, name, hint string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	cp, err := ws.store.CreateCounterparty(ctx, model.Counterparty{Name: name, RememberedHint: hint})
	if err != nil {
		return err
	}
	if _, err := ws.persist(ctx, "partner: add "+name, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %s (%s)\n", cp.Name, cp.ID)
	return nil
}

func newPartnerListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List counterparties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer ws.close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tHINT")
			for _, cp := range ws.store.Counterparties(cmd.Context()) {
				hint := cp.RememberedHint
				if cp.HintDiverged {
					hint = "(diverged)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", cp.ID, cp.Name, hint)
			}
			return tw.Flush()
		},
	}
}

func newPartnerAssignCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <line-id> <counterparty-id>",
		Short: "Set the counterparty of a statement line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartnerAssign(cmd.Context(), opts, args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func runPartnerAssign(ctx context.Context, opts *globalOptions, lineID, counterpartyID string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	v := partner.NewValidator(ws.store, chain.New(ws.store, ws.logger), ws.logger)
	if err := v.Assign(ctx, lineID, counterpartyID); err != nil {
		return err
	}

	l, err := ws.store.Line(ctx, lineID)
	if err != nil {
		return err
	}
	st, err := ws.store.Statement(ctx, l.StatementID)
	if err != nil {
		return err
	}

	entry := newEntry(l.JournalID, synclog.ActionAssign, fmt.Sprintf("line=%s counterparty=%s", lineID, counterpartyID), st.Name)
	if _, err := ws.persist(ctx, "partner: assign "+lineID, []synclog.Entry{entry}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Assigned line %s to %s\n", lineID, counterpartyID)
	return nil
}
