package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/connect/internal/connect"
	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/wal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Location string
	WALKind  string

	// IDGenerator allows overriding action, record and transaction ids (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator ir.IDGenerator

	// Started, if set, receives the coordinator once it is started (for testing).
	Started func(*connect.Connect)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [schema-path]",
		Short: "Start a coordinator for a schema",
		Long: `Start a coordinator: register the schema's resources, open every
configured store and the write-ahead log, and serve until interrupted.

SIGUSR1 suspends dispatch, SIGUSR2 resumes it. Ctrl-C or SIGTERM stops the
coordinator after in-flight actions finish.

Example:
  connect run ./model.cue
  connect run --config ./connect.yaml --name app --wal-kind pebble`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Location, "location", "", "base directory for stores (default: user cache dir)")
	cmd.Flags().StringVar(&opts.WALKind, "wal-kind", "", "WAL backend (sqlite|pebble|memory)")

	return cmd
}

func runCoordinator(opts *RunOptions, args []string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfiguration(opts.RootOptions)
	if err != nil {
		_ = formatter.Fail(ErrCodeConfig, err)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Location != "" {
		cfg.Location = opts.Location
	}
	if opts.WALKind != "" {
		cfg.WAL.Kind = wal.Kind(opts.WALKind)
	}

	s, err := loadSchema(opts.RootOptions, args, formatter)
	if err != nil {
		return err
	}

	name := coordinatorName(opts.RootOptions, cfg)
	coordOpts := []connect.Option{
		connect.WithConfiguration(*cfg),
		connect.WithSignalSource(newSignalSource()),
	}
	if opts.IDGenerator != nil {
		coordOpts = append(coordOpts, connect.WithIDGenerator(opts.IDGenerator))
	}
	c := connect.New(name, s, coordOpts...)
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			slog.Error("error closing coordinator", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.Start(); err != nil {
		_ = formatter.Fail(ErrCodeStoreLoad, err)
		return WrapExitError(ExitCommandError, "failed to start coordinator", err)
	}

	managed := 0
	for _, d := range c.Descriptors() {
		if d.Managed {
			managed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Coordinator %q started: %d of %d resources managed.\n",
		name, managed, len(c.Descriptors()))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if opts.Started != nil {
		opts.Started(c)
	}

	<-ctx.Done()

	if err := c.Stop(); err != nil {
		return WrapExitError(ExitFailure, "failed to stop coordinator", err)
	}
	slog.Info("coordinator stopped gracefully", "name", name)
	return nil
}
