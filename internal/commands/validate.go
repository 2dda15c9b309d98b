package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/chain"
	"github.com/cleared-dev/banksync/internal/partner"
	"github.com/cleared-dev/banksync/internal/synclog"
)

func newValidateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <statement>",
		Short: "Confirm a reviewed statement and learn counterparty hints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func runValidate(ctx context.Context, opts *globalOptions, name string, out io.Writer) error {
	ws, err := openWorkspace(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.close()

	st, err := ws.store.StatementByName(ctx, name)
	if err != nil {
		return err
	}

	v := partner.NewValidator(ws.store, chain.New(ws.store, ws.logger), ws.logger)
	changed, err := v.Validate(ctx, st.ID)
	if err != nil {
		return err
	}

	entry := newEntry(st.JournalID, synclog.ActionValidate, fmt.Sprintf("counterparties_updated=%d", len(changed)), st.Name)
	hash, err := ws.persist(ctx, "validate: "+st.Name, []synclog.Entry{entry})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Confirmed %s\n", st.Name)
	for _, cp := range changed {
		if cp.HintDiverged {
			fmt.Fprintf(out, "  %s (%s): hint forgotten\n", cp.Name, cp.ID)
			continue
		}
		fmt.Fprintf(out, "  %s (%s): remembers %q\n", cp.Name, cp.ID, cp.RememberedHint)
	}
	if hash != "" {
		fmt.Fprintf(out, "Committed %s\n", hash)
	}
	return nil
}
