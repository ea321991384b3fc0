package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/seiql/internal/engine"
	"github.com/roach88/seiql/internal/ir"
)

// DatabaseOptions selects a logical database.
type DatabaseOptions struct {
	Owner    string
	Database string
}

func (o *DatabaseOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Owner, "owner", "", "owner address (required)")
	cmd.Flags().StringVar(&o.Database, "db", "", "logical database name (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("db")
}

func (o *DatabaseOptions) owner() (ir.Address, error) {
	addr, err := ir.ParseAddress(o.Owner)
	if err != nil {
		return ir.Address{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --owner %q: want 0x followed by 40 hex digits", o.Owner))
	}
	return addr, nil
}

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	DatabaseOptions
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute a statement against mirror and chain",
		Long: `Execute one statement against a logical database.

SELECT is answered from the local mirror. Every other statement is applied
to the mirror, sent to the chain, and rolled back on the mirror if the chain
call fails.

Examples:
  seiql exec --owner 0xa1... --db ledger "CREATE TABLE accounts (id INTEGER, wallet ADDRESS)"
  seiql exec --owner 0xa1... --db ledger "SELECT * FROM accounts" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}
	opts.bind(cmd)

	return cmd
}

func runExec(opts *ExecOptions, query string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	owner, err := opts.owner()
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context(), opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open environment", err)
	}
	defer e.close()

	res, err := e.coordinator().Execute(cmd.Context(), query, owner, opts.Database)
	if saveErr := e.save(); saveErr != nil {
		return WrapExitError(ExitFailure, "chain state not saved", saveErr)
	}
	if err != nil {
		return formatter.Fail(err)
	}

	return formatter.Success(res, func(w io.Writer) { writeResult(w, res) })
}

func writeResult(w io.Writer, res *engine.Result) {
	if len(res.Columns) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
		for _, row := range res.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatCell(v)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		tw.Flush()
	}

	summary := fmt.Sprintf("%s ok (%d rows)", strings.ToUpper(string(res.Kind)), len(res.Rows))
	if len(res.RowIndexes) > 0 {
		summary += fmt.Sprintf(", chain rows %v", res.RowIndexes)
	}
	fmt.Fprintln(w, summary)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("0x%x", x)
	default:
		return fmt.Sprint(x)
	}
}
