// Package registry resolves (owner, logical name) pairs to on-chain
// database addresses.
//
// Two stores implement Resolver: SQLite for a single host and Postgres for
// a shared deployment. Both keep one row per (owner, name) in a databases
// table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/seiql/internal/ir"
)

// Name length bounds, in characters.
const (
	MinNameLength = 3
	MaxNameLength = 64
)

const tableName = "databases"

var (
	// ErrNotFound is wrapped by Resolve when no record matches.
	ErrNotFound = errors.New("database not registered")

	// ErrAlreadyRegistered is wrapped by Register when the owner already
	// has a database of that name.
	ErrAlreadyRegistered = errors.New("database already registered")
)

// Resolver maps logical databases to addresses.
type Resolver interface {
	Resolve(ctx context.Context, owner ir.Address, name string) (ir.Address, error)
	Register(ctx context.Context, db ir.LogicalDatabase) error
	Close() error
}

// NormalizeName trims and NFC-normalizes a logical name and checks its length.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	switch l := utf8.RuneCountInString(n); {
	case l < MinNameLength:
		return "", ir.Errorf(ir.CodeValidation, "database name %q too short (min %d)", name, MinNameLength)
	case l > MaxNameLength:
		return "", ir.Errorf(ir.CodeValidation, "database name %q too long (max %d)", name, MaxNameLength)
	}
	return n, nil
}

func validateRecord(db ir.LogicalDatabase) (ir.LogicalDatabase, error) {
	name, err := NormalizeName(db.Name)
	if err != nil {
		return db, err
	}
	if db.Owner.IsZero() {
		return db, ir.Errorf(ir.CodeValidation, "database %q has no owner", name)
	}
	if db.Address.IsZero() {
		return db, ir.Errorf(ir.CodeValidation, "database %q has no address", name)
	}
	db.Name = name
	return db, nil
}

func notFound(owner ir.Address, name string) error {
	return ir.WrapError(ir.CodeResolution, ErrNotFound, "no database %q for owner %s", name, owner.Hex())
}

func alreadyRegistered(db ir.LogicalDatabase, cause error) error {
	return ir.WrapError(ir.CodeValidation, fmt.Errorf("%w: %v", ErrAlreadyRegistered, cause),
		"owner %s already has a database %q", db.Owner.Hex(), db.Name)
}

// Open opens the resolver store selected by driver: "sqlite" uses path,
// "postgres" uses dsn.
func Open(ctx context.Context, driver, path, dsn string) (Resolver, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown registry driver %q", driver)
	}
}
