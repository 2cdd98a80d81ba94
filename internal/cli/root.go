package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/connect/internal/config"
	"github.com/roach88/connect/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a YAML configuration file
	Name    string // coordinator name, overrides the config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultName is the coordinator name when neither flag nor config sets one.
const DefaultName = "connect"

// NewRootCommand creates the root command for the connect CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "connect",
		Version: ir.Version,
		Short:   "connect - transactional persistence coordinator",
		Long: `A persistence coordinator that serializes work per resource type and
logs every commit to a write-ahead log before it reaches the store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.Name, "name", "", "coordinator name")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewWALCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging installs a text handler on stderr, at debug level with --verbose.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// loadConfiguration reads --config, or returns an empty configuration.
func loadConfiguration(opts *RootOptions) (*config.Configuration, error) {
	if opts.Config == "" {
		return &config.Configuration{}, nil
	}
	return config.Load(opts.Config)
}

// coordinatorName picks --name, then the config file's name, then DefaultName.
func coordinatorName(opts *RootOptions, cfg *config.Configuration) string {
	switch {
	case opts.Name != "":
		return opts.Name
	case cfg.Name != "":
		return cfg.Name
	default:
		return DefaultName
	}
}
