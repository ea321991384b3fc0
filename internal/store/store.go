package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/querysql"
)

// Store is one mirror database. It is bound to a single file path for its
// whole life; Restore swaps the file underneath and reopens it.
type Store struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
}

// Open creates or opens the mirror database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single pooled connection
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func (s *Store) conn() (*sql.DB, error) {
	db := s.DB()
	if db == nil {
		return nil, ir.Errorf(ir.CodeMirror, "mirror %s is closed", s.path)
	}
	return db, nil
}

// Result holds the rows a statement produced. Values are the driver's
// native types: int64, float64, string, []byte, or nil.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Apply runs stmts in one transaction. When returnsRows is set, the rows
// of the last statement are collected; SELECT and RETURNING statements
// need it.
func (s *Store) Apply(ctx context.Context, stmts []string, returnsRows bool) (*Result, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "begin mirror transaction")
	}
	defer tx.Rollback()

	res := &Result{}
	for i, stmt := range stmts {
		if returnsRows && i == len(stmts)-1 {
			res, err = queryAll(ctx, tx, stmt)
			if err != nil {
				return nil, ir.WrapError(ir.CodeMirror, err, "mirror rejected %q", stmt)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, ir.WrapError(ir.CodeMirror, err, "mirror rejected %q", stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "commit mirror transaction")
	}
	return res, nil
}

func queryAll(ctx context.Context, tx *sql.Tx, stmt string) (*Result, error) {
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// TableColumns lists a table's columns in declaration order, bookkeeping
// column included. A missing table yields ir.CodeTableNotFound.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	// The table-valued pragma takes its argument through the hidden arg column.
	rows, err := sq.Select("name").
		From("pragma_table_info").
		Where(sq.Eq{"arg": table}).
		OrderBy("cid").
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "read columns of %s", table).WithTable(table)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ir.WrapError(ir.CodeMirror, err, "read columns of %s", table).WithTable(table)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "read columns of %s", table).WithTable(table)
	}
	if len(cols) == 0 {
		return nil, ir.Errorf(ir.CodeTableNotFound, "no such table: %s", table).WithTable(table)
	}
	return cols, nil
}

// HasTable reports whether table exists in the mirror.
func (s *Store) HasTable(ctx context.Context, table string) (bool, error) {
	_, err := s.TableColumns(ctx, table)
	if ir.IsCode(err, ir.CodeTableNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RowCount returns the number of rows in table.
func (s *Store) RowCount(ctx context.Context, table string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = sq.Select("COUNT(*)").
		From(querysql.QuoteIdent(table)).
		RunWith(db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, ir.WrapError(ir.CodeMirror, err, "count rows of %s", table).WithTable(table)
	}
	return n, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.DB().QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
