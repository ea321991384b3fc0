package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/seiql/internal/augment"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// AugmentOptions holds flags for the augment command.
type AugmentOptions struct {
	*RootOptions
	DatabaseOptions
}

// AugmentOutput is the augment command payload.
type AugmentOutput struct {
	Kind       queryir.StatementKind `json:"kind"`
	SQL        string                `json:"sql"`
	Statements []string              `json:"statements"`
	Mappings   []ir.TypeMapping      `json:"mappings,omitempty"`
}

// NewAugmentCommand creates the augment command.
func NewAugmentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AugmentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "augment <sql>",
		Short: "Show the mirror SQL for a statement",
		Long: `Rewrite a statement the way exec would before applying it to the mirror,
without touching the mirror or the chain.

Domain column types are replaced with SQLite types and the bookkeeping
column is added or hidden. SELECT * needs the table schema: pass --owner
and --db to read it from that database's mirror.

Example:
  seiql augment "CREATE TABLE accounts (id INTEGER, wallet ADDRESS, active BOOL)"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAugment(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner address, for schema lookups")
	cmd.Flags().StringVar(&opts.Database, "db", "", "logical database name, for schema lookups")

	return cmd
}

// noSchema answers schema lookups when no database was selected.
type noSchema struct{}

func (noSchema) TableColumns(_ context.Context, table string) ([]string, error) {
	return nil, ir.Errorf(ir.CodeTableNotFound, "no schema for %s: pass --owner and --db", table).WithTable(table)
}

func runAugment(opts *AugmentOptions, query string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	var lookup augment.SchemaLookup = noSchema{}
	if opts.Owner != "" || opts.Database != "" {
		owner, err := opts.owner()
		if err != nil {
			return err
		}
		e, err := openEnv(ctx, opts.RootOptions)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open environment", err)
		}
		defer e.close()

		addr, err := e.registry.Resolve(ctx, owner, opts.Database)
		if err != nil {
			return formatter.Fail(err)
		}
		mirror, err := e.mirrors.Open(ctx, addr)
		if err != nil {
			return formatter.Fail(err)
		}
		defer mirror.Close()
		lookup = mirror
	}

	aq, err := augment.New(augment.WithLogger(opts.Logger)).Augment(ctx, query, lookup)
	if err != nil {
		return formatter.Fail(err)
	}

	out := AugmentOutput{Kind: aq.Kind, SQL: aq.SQL, Statements: aq.Statements, Mappings: aq.Mappings}
	return formatter.Success(out, func(w io.Writer) {
		for _, stmt := range out.Statements {
			fmt.Fprintln(w, stmt)
		}
		for _, m := range out.Mappings {
			fmt.Fprintf(w, "-- %s -> %s at offset %d\n", m.Original, m.Canonical, m.SourceOffset)
		}
	})
}
