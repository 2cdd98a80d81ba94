package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/wal"
)

// TransactionSummary is one line of `wal list`.
type TransactionSummary struct {
	ID        string   `json:"id"`
	Seq       int64    `json:"seq"`
	Changes   int      `json:"changes"`
	Resources []string `json:"resources"`
}

// TransactionList is the output of `wal list`.
type TransactionList struct {
	Store        string               `json:"store"`
	Transactions []TransactionSummary `json:"transactions"`
}

// String renders the list as a table for text output.
func (l TransactionList) String() string {
	if len(l.Transactions) == 0 {
		return fmt.Sprintf("No pending transactions in %s", l.Store)
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tCHANGES\tRESOURCES")
	for _, tx := range l.Transactions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", tx.Seq, tx.ID, tx.Changes, strings.Join(tx.Resources, ","))
	}
	tw.Flush()
	fmt.Fprintf(&b, "\n%d pending transaction(s) in %s", len(l.Transactions), l.Store)
	return b.String()
}

// TransactionDetail is the output of `wal show`.
type TransactionDetail struct {
	ir.Transaction
}

// String renders the transaction header followed by its canonical payload.
func (d TransactionDetail) String() string {
	payload, err := ir.MarshalChangeSet(d.Changes)
	if err != nil {
		payload = []byte(err.Error())
	}
	return fmt.Sprintf("Transaction %s (seq %d, digest %s)\n%s", d.ID, d.Seq, d.Digest, payload)
}

// NewWALCommand creates the wal command group.
func NewWALCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wal",
		Short: "Inspect transactions retained in the write-ahead log",
		Long: `Inspect the write-ahead log of a coordinator.

Transactions stay in the log only when the store rejected their commit.
The log is located the same way the coordinator locates it: from --config
and --name.`,
	}

	cmd.AddCommand(newWALListCommand(rootOpts))
	cmd.AddCommand(newWALShowCommand(rootOpts))
	return cmd
}

func newWALListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained transactions, oldest first",
		Example: `  connect wal list --name app
  connect wal list --config ./connect.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWALList(rootOpts, cmd)
		},
	}
}

func newWALShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <transaction-id>",
		Short:         "Show one retained transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWALShow(rootOpts, args[0], cmd)
		},
	}
}

func runWALList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	w, store, err := openWAL(opts, formatter)
	if err != nil {
		return err
	}
	defer w.Close()

	txs, err := w.Pending(commandContext(cmd))
	if err != nil {
		return walError(formatter, "", err)
	}

	list := TransactionList{Store: store, Transactions: make([]TransactionSummary, 0, len(txs))}
	for _, tx := range txs {
		list.Transactions = append(list.Transactions, TransactionSummary{
			ID:        tx.ID,
			Seq:       tx.Seq,
			Changes:   tx.Changes.Len(),
			Resources: tx.Changes.Resources(),
		})
	}
	return formatter.Success(list)
}

func runWALShow(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	w, _, err := openWAL(opts, formatter)
	if err != nil {
		return err
	}
	defer w.Close()

	tx, err := w.Transaction(commandContext(cmd), id)
	if err != nil {
		return walError(formatter, id, err)
	}
	return formatter.Success(TransactionDetail{Transaction: tx})
}

// openWAL opens the coordinator's WAL for inspection. Unlike the
// coordinator, it never recreates an incompatible log.
func openWAL(opts *RootOptions, formatter *OutputFormatter) (*wal.WAL, string, error) {
	cfg, err := loadConfiguration(opts)
	if err != nil {
		_ = formatter.Fail(ErrCodeConfig, err)
		return nil, "", WrapExitError(ExitCommandError, "failed to load config", err)
	}

	meta := cfg.Resolved(coordinatorName(opts, cfg)).MetaStoreConfiguration()
	meta.OverwriteIncompatible = false

	if meta.Kind == wal.KindMemory {
		msg := "an in-memory WAL does not outlive its coordinator"
		_ = formatter.Error(ErrCodeGeneric, msg)
		return nil, "", NewExitError(ExitCommandError, msg)
	}
	if _, err := os.Stat(meta.Path); err != nil {
		msg := fmt.Sprintf("no WAL at %s", meta.Path)
		_ = formatter.Error(ErrCodeNotFound, msg)
		return nil, "", WrapExitError(ExitCommandError, msg, err)
	}

	formatter.VerboseLog("Opening WAL %s (%s) at %s", meta.Name, meta.Kind, meta.Path)
	w, err := wal.Open(meta)
	if err != nil {
		_ = formatter.Fail(ErrCodeStoreLoad, err)
		return nil, "", WrapExitError(ExitCommandError, "failed to open WAL", err)
	}
	return w, meta.Name, nil
}

// walError reports a WAL read failure; id is the transaction asked for, if any.
func walError(formatter *OutputFormatter, id string, err error) error {
	var details *ErrorDetails
	if id != "" {
		details = &ErrorDetails{TransactionID: id}
	}
	switch {
	case errors.Is(err, wal.ErrTransactionNotFound):
		_ = formatter.write(ErrCodeTransactionNotFound, err.Error(), details)
		return WrapExitError(ExitFailure, "transaction not found", err)
	case errors.Is(err, wal.ErrCorruptTransaction):
		_ = formatter.write(ErrCodeCorruptTransaction, err.Error(), details)
		return WrapExitError(ExitFailure, "corrupt transaction", err)
	default:
		_ = formatter.write(ErrCodeGeneric, err.Error(), details)
		return WrapExitError(ExitFailure, "failed to read WAL", err)
	}
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
