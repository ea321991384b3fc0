// Package chain defines the on-chain table store the mirror follows.
//
// Database and Table mirror the two contract ABIs. Row and column indices
// are the contract's uint256 handles; every method that changes state is a
// transaction and every other method is a view call.
//
// Memory is an in-process implementation that enforces the table
// contract's type checks. It backs the CLI and the tests; there is no EVM
// client here.
package chain

import (
	"context"
	"errors"

	"github.com/roach88/seiql/internal/ir"
)

// Gateway binds contract handles to deployed addresses.
type Gateway interface {
	Database(ctx context.Context, addr ir.Address) (Database, error)
	Table(ctx context.Context, addr ir.Address) (Table, error)
}

// Database is the database contract.
type Database interface {
	// CreateTable deploys a table with the given columns and returns its
	// address. names and tags are parallel.
	CreateTable(ctx context.Context, names []string, tags []ir.TypeTag, name string) (ir.Address, error)

	// DropTable removes the table at position index of TableNames.
	DropTable(ctx context.Context, index uint64) error

	// RenameTable renames the table at position index of TableNames.
	RenameTable(ctx context.Context, index uint64, name string) error

	TableNames(ctx context.Context) ([]string, error)
	GetTable(ctx context.Context, name string) (ir.Address, error)
}

// Table is the table contract.
type Table interface {
	AddColumnType(ctx context.Context, name string, tag ir.TypeTag) error
	RemoveActiveColumn(ctx context.Context, columnIndex uint64) error
	RenameColumnType(ctx context.Context, columnIndex uint64, name string) error

	// InsertOne appends a row and returns its index.
	InsertOne(ctx context.Context, columns []uint64, values [][]byte) (uint64, error)

	// InsertMany appends rows in order and returns their indices.
	InsertMany(ctx context.Context, columns [][]uint64, values [][][]byte) ([]uint64, error)

	UpdateOne(ctx context.Context, row uint64, columns []uint64, values [][]byte) error
	UpdateMany(ctx context.Context, rows []uint64, columns [][]uint64, values [][][]byte) error
	DeleteOne(ctx context.Context, row uint64) error
	DeleteMany(ctx context.Context, rows []uint64) error

	// ActiveColumnTypes lists the active columns in index order.
	ActiveColumnTypes(ctx context.Context) ([]ir.ColumnDefinition, error)

	// ReadRow returns the cells of an active column set for row. Deleted
	// or never-written slots fail with ErrRowNotFound.
	ReadRow(ctx context.Context, row uint64) (ir.Row, error)

	// RowCount returns the number of row slots ever allocated, deleted
	// slots included.
	RowCount(ctx context.Context) (uint64, error)
}

// Contract reverts.
var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrRowNotFound      = errors.New("row not found")
	ErrColumnNotFound   = errors.New("column not active")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrNameTaken        = errors.New("name already taken")
	ErrLengthMismatch   = errors.New("length mismatch")
	ErrTypeCheck        = errors.New("type check failed")
)
