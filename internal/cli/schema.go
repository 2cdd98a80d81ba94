package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/connect/internal/registry"
	"github.com/roach88/connect/internal/schema"
)

// ResourceReport describes how the registry treats one resource type.
type ResourceReport struct {
	Name          string   `json:"name"`
	Managed       bool     `json:"managed"`
	UniquenessKey []string `json:"uniqueness_key,omitempty"`
	Lane          string   `json:"lane,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// SchemaReport is the output of the schema command.
type SchemaReport struct {
	Resources []ResourceReport `json:"resources"`
	Managed   int              `json:"managed"`
	Total     int              `json:"total"`
}

// String renders the report as an aligned table for text output.
func (r SchemaReport) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tMANAGED\tKEY\tLANE")
	for _, res := range r.Resources {
		managed, key, lane := "no", "-", "-"
		if res.Managed {
			managed = "yes"
			key = strings.Join(res.UniquenessKey, ",")
			lane = res.Lane
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Name, managed, key, lane)
	}
	tw.Flush()

	fmt.Fprintf(&b, "\n%d of %d resources managed", r.Managed, r.Total)
	for _, res := range r.Resources {
		if res.Error != "" {
			fmt.Fprintf(&b, "\n%s: %s", res.Name, res.Error)
		}
	}
	return b.String()
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [schema-path]",
		Short: "Show which resources get a serial lane",
		Long: `Load a CUE or YAML schema and report, per resource type, the uniqueness
key the registry resolves and the serial lane it would create.

A declared key naming a missing attribute leaves the resource unmanaged;
the report lists the reason. The schema path defaults to the config file's
schema setting.

Example:
  connect schema ./model.cue
  connect schema --format json ./schema.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := loadSchema(opts, args, formatter)
	if err != nil {
		return err
	}

	reg := registry.New()
	reg.RegisterAll(s)
	return formatter.Success(buildSchemaReport(reg.Descriptors()))
}

func buildSchemaReport(descs []registry.Descriptor) SchemaReport {
	report := SchemaReport{
		Resources: make([]ResourceReport, 0, len(descs)),
		Total:     len(descs),
	}
	for _, d := range descs {
		res := ResourceReport{
			Name:          d.Name,
			Managed:       d.Managed,
			UniquenessKey: d.UniquenessKey,
			Lane:          d.Lane,
		}
		if d.Err != nil {
			res.Error = d.Err.Error()
		}
		if d.Managed {
			report.Managed++
		}
		report.Resources = append(report.Resources, res)
	}
	return report
}

// loadSchema resolves the schema path from args or the config file and
// loads it, reporting failures through formatter.
func loadSchema(opts *RootOptions, args []string, formatter *OutputFormatter) (*schema.Schema, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfiguration(opts)
		if err != nil {
			_ = formatter.Fail(ErrCodeConfig, err)
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		path = cfg.Schema
	}
	if path == "" {
		msg := "no schema: pass a path or set schema in the config file"
		_ = formatter.Error(ErrCodeSchema, msg)
		return nil, NewExitError(ExitCommandError, msg)
	}

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("schema not found: %s", path))
		return nil, WrapExitError(ExitCommandError, "schema not found", err)
	}

	formatter.VerboseLog("Loading schema %s", path)
	s, err := schema.Load(path)
	if err != nil {
		_ = formatter.Fail(ErrCodeSchema, err)
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	return s, nil
}
