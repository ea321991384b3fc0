package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/querysql"
)

// PendingRowIDs returns the rowids of rows whose bookkeeping column still
// holds a pending sentinel, in insertion order.
func (s *Store) PendingRowIDs(ctx context.Context, table string) ([]int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select("rowid").
		From(querysql.QuoteIdent(table)).
		Where(sq.Lt{ir.BookkeepingColumn: 0}).
		OrderBy("rowid").
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "read pending rows of %s", table).WithTable(table)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ir.WrapError(ir.CodeMirror, err, "read pending rows of %s", table).WithTable(table)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BackfillRowIndexes writes committed chain row indices into the pending
// rows of table. indices[i] belongs to the row carrying ir.PendingIndex(i),
// so the pairing follows statement order whatever rowids SQLite assigned.
// Every sentinel must match exactly one row and no pending row may be left.
func (s *Store) BackfillRowIndexes(ctx context.Context, table string, indices []uint64) error {
	ids, err := s.PendingRowIDs(ctx, table)
	if err != nil {
		return err
	}
	if len(ids) != len(indices) {
		return ir.Errorf(ir.CodeMirrorDiverged,
			"%d pending mirror rows but the chain committed %d", len(ids), len(indices)).WithTable(table)
	}

	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ir.WrapError(ir.CodeMirror, err, "begin backfill").WithTable(table)
	}
	defer tx.Rollback()

	for i, index := range indices {
		sentinel := ir.PendingIndex(i)
		res, err := sq.Update(querysql.QuoteIdent(table)).
			Set(ir.BookkeepingColumn, int64(index)).
			Where(sq.Eq{ir.BookkeepingColumn: sentinel}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return ir.WrapError(ir.CodeMirror, err, "backfill pending row %d", i).WithTable(table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ir.WrapError(ir.CodeMirror, err, "backfill pending row %d", i).WithTable(table)
		}
		if n != 1 {
			return ir.Errorf(ir.CodeMirrorDiverged,
				"pending sentinel %d matched %d mirror rows", sentinel, n).WithTable(table)
		}
	}
	if err := tx.Commit(); err != nil {
		return ir.WrapError(ir.CodeMirror, err, "commit backfill").WithTable(table)
	}
	return nil
}

// RowIndexes returns the bookkeeping values of every row in table.
func (s *Store) RowIndexes(ctx context.Context, table string) ([]int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select(ir.BookkeepingColumn).
		From(querysql.QuoteIdent(table)).
		OrderBy(ir.BookkeepingColumn).
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "read row indexes of %s", table).WithTable(table)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, ir.WrapError(ir.CodeMirror, err, "read row indexes of %s", table).WithTable(table)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
