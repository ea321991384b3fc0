package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/registry"
)

// DBOptions holds flags for the db subcommands.
type DBOptions struct {
	*RootOptions
	Owner string
}

// DBOutput is the payload of every db subcommand.
type DBOutput struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage logical databases",
		Long: `Create, register and resolve logical databases.

A logical database is a name owned by an address and bound to an on-chain
database contract. exec resolves (owner, name) through the registry.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "", "owner address (required)")
	_ = cmd.MarkPersistentFlagRequired("owner")

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a database on the development chain and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBCreate(opts, args[0], cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "register <name> <address>",
		Short: "Bind a name to an existing database address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBRegister(opts, args[0], args[1], cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <name>",
		Short: "Print the address registered for a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBResolve(opts, args[0], cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return cmd
}

func (o *DBOptions) owner() (ir.Address, error) {
	return (&DatabaseOptions{Owner: o.Owner}).owner()
}

func runDBCreate(opts *DBOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	owner, err := opts.owner()
	if err != nil {
		return err
	}
	name, err = registry.NormalizeName(name)
	if err != nil {
		return formatter.Fail(err)
	}

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open environment", err)
	}
	defer e.close()

	if _, err := e.registry.Resolve(ctx, owner, name); err == nil {
		return formatter.Fail(ir.WrapError(ir.CodeValidation, registry.ErrAlreadyRegistered, "database %q already exists for %s", name, owner.Hex()))
	}

	addr, err := e.chain.CreateDatabase(ctx, owner, name)
	if err != nil {
		return formatter.Fail(ir.WrapError(ir.CodeChainCall, err, "createDatabase %s", name))
	}
	if err := e.registry.Register(ctx, ir.LogicalDatabase{Owner: owner, Name: name, Address: addr}); err != nil {
		return formatter.Fail(err)
	}
	if err := e.save(); err != nil {
		return WrapExitError(ExitFailure, "chain state not saved", err)
	}
	opts.Logger.Info("database created", "owner", owner.Hex(), "name", name, "address", addr.Hex())

	return writeDB(formatter, DBOutput{Owner: owner.Hex(), Name: name, Address: addr.Hex()})
}

func runDBRegister(opts *DBOptions, name, address string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	owner, err := opts.owner()
	if err != nil {
		return err
	}
	addr, err := ir.ParseAddress(address)
	if err != nil {
		return formatter.Fail(ir.WrapError(ir.CodeValidation, err, "invalid database address %q", address))
	}

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open environment", err)
	}
	defer e.close()

	db := ir.LogicalDatabase{Owner: owner, Name: name, Address: addr}
	if err := e.registry.Register(ctx, db); err != nil {
		return formatter.Fail(err)
	}
	name, _ = registry.NormalizeName(name)
	return writeDB(formatter, DBOutput{Owner: owner.Hex(), Name: name, Address: addr.Hex()})
}

func runDBResolve(opts *DBOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	owner, err := opts.owner()
	if err != nil {
		return err
	}

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open environment", err)
	}
	defer e.close()

	addr, err := e.registry.Resolve(ctx, owner, name)
	if err != nil {
		return formatter.Fail(err)
	}
	name, _ = registry.NormalizeName(name)
	return writeDB(formatter, DBOutput{Owner: owner.Hex(), Name: name, Address: addr.Hex()})
}

func writeDB(formatter *OutputFormatter, out DBOutput) error {
	return formatter.Success(out, func(w io.Writer) {
		fmt.Fprintln(w, out.Address)
	})
}
