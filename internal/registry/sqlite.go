package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/seiql/internal/ir"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS databases (
	owner   TEXT NOT NULL,
	name    TEXT NOT NULL,
	address TEXT NOT NULL,
	PRIMARY KEY (owner, name)
)`

// SQLite is a Resolver backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the registry at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize registry: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Resolve returns the address registered for (owner, name).
func (s *SQLite) Resolve(ctx context.Context, owner ir.Address, name string) (ir.Address, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return ir.Address{}, err
	}

	var raw string
	err = sq.Select("address").
		From(tableName).
		Where(sq.Eq{"owner": owner.Hex(), "name": n}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Address{}, notFound(owner, n)
	}
	if err != nil {
		return ir.Address{}, ir.WrapError(ir.CodeResolution, err, "resolve %q", n)
	}
	addr, err := ir.ParseAddress(raw)
	if err != nil {
		return ir.Address{}, ir.WrapError(ir.CodeResolution, err, "stored address for %q", n)
	}
	return addr, nil
}

// Register records db. Names are unique per owner.
func (s *SQLite) Register(ctx context.Context, db ir.LogicalDatabase) error {
	rec, err := validateRecord(db)
	if err != nil {
		return err
	}

	_, err = sq.Insert(tableName).
		Columns("owner", "name", "address").
		Values(rec.Owner.Hex(), rec.Name, rec.Address.Hex()).
		RunWith(s.db).
		ExecContext(ctx)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return alreadyRegistered(rec, err)
	}
	if err != nil {
		return fmt.Errorf("register %q: %w", rec.Name, err)
	}
	return nil
}
