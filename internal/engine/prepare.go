package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
	"github.com/roach88/seiql/internal/store"
)

// operation is the chain side of one mutating statement. It is built from
// view calls only, before the mirror is touched.
type operation struct {
	table string

	// targets are the chain rows an UPDATE or DELETE matched; checked
	// against the mirror's RETURNING rows when checkTargets is set.
	targets      []uint64
	checkTargets bool

	// dispatch sends the state-changing calls. nil skips the chain.
	dispatch func(ctx context.Context, mirror Mirror, out *store.Result) ([]uint64, error)
}

// cells is one row's (column index, bytes) pairs.
type cells struct {
	columns []uint64
	values  [][]byte
}

func (cs *cells) add(column uint64, data []byte) {
	cs.columns = append(cs.columns, column)
	cs.values = append(cs.values, data)
}

// sorted orders the pairs by column index.
func (cs *cells) sorted() {
	idx := make([]int, len(cs.columns))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		switch {
		case cs.columns[a] < cs.columns[b]:
			return -1
		case cs.columns[a] > cs.columns[b]:
			return 1
		}
		return 0
	})
	cols := make([]uint64, len(idx))
	vals := make([][]byte, len(idx))
	for i, j := range idx {
		cols[i] = cs.columns[j]
		vals[i] = cs.values[j]
	}
	cs.columns, cs.values = cols, vals
}

func (c *Coordinator) prepare(ctx context.Context, db chain.Database, stmt queryir.Statement) (*operation, error) {
	switch st := stmt.(type) {
	case *queryir.CreateTable:
		return c.prepareCreate(ctx, db, st)
	case *queryir.Insert:
		return c.prepareInsert(ctx, db, st)
	case *queryir.Update:
		return c.prepareUpdate(ctx, db, st)
	case *queryir.Delete:
		return c.prepareDelete(ctx, db, st)
	case *queryir.AlterTable:
		return c.prepareAlter(ctx, db, st)
	case *queryir.DropTable:
		return c.prepareDrop(ctx, db, st)
	default:
		return nil, ir.Errorf(ir.CodeUnsupportedQueryType, "cannot dispatch %T", stmt)
	}
}

func (c *Coordinator) prepareCreate(ctx context.Context, db chain.Database, st *queryir.CreateTable) (*operation, error) {
	names := make([]string, len(st.Columns))
	tags := make([]ir.TypeTag, len(st.Columns))
	for i, col := range st.Columns {
		tag, err := columnTag(col, st.Table)
		if err != nil {
			return nil, err
		}
		names[i] = col.Name
		tags[i] = tag
	}

	op := &operation{table: st.Table}
	if st.IfNotExists {
		_, _, err := findTable(ctx, db, st.Table)
		if err == nil {
			return op, nil
		}
		if !ir.IsCode(err, ir.CodeTableNotFound) {
			return nil, err
		}
	}

	op.dispatch = func(ctx context.Context, _ Mirror, _ *store.Result) ([]uint64, error) {
		if _, err := db.CreateTable(ctx, names, tags, st.Table); err != nil {
			return nil, callError(err, st.Table, "createTable %s", st.Table)
		}
		return nil, nil
	}
	return op, nil
}

func (c *Coordinator) prepareInsert(ctx context.Context, db chain.Database, st *queryir.Insert) (*operation, error) {
	tbl, schema, err := c.bindTable(ctx, db, st.Table)
	if err != nil {
		return nil, err
	}

	cols := make([]ir.ColumnDefinition, len(st.Columns))
	listed := make(map[uint64]bool, len(st.Columns))
	for i, name := range st.Columns {
		def, err := lookupColumn(schema, st.Table, name)
		if err != nil {
			return nil, err
		}
		cols[i] = def
		listed[def.Index] = true
	}

	rows := make([]cells, len(st.Rows))
	for r, exprs := range st.Rows {
		for i, e := range exprs {
			v, err := evalExpr(e, nil)
			if err != nil {
				return nil, withTable(err, st.Table)
			}
			if ir.IsNull(v) {
				continue
			}
			data, err := c.codec.Encode(v, cols[i].Tag, cols[i].Name)
			if err != nil {
				return nil, withTable(err, st.Table)
			}
			rows[r].add(cols[i].Index, data)
		}
	}

	op := &operation{table: st.Table}
	op.dispatch = func(ctx context.Context, mirror Mirror, out *store.Result) ([]uint64, error) {
		if err := c.addMirrorDefaults(st.Table, rows, schema, listed, out); err != nil {
			return nil, err
		}

		var indices []uint64
		if len(rows) == 1 {
			idx, err := tbl.InsertOne(ctx, rows[0].columns, rows[0].values)
			if err != nil {
				return nil, callError(err, st.Table, "insertOne into %s", st.Table)
			}
			indices = []uint64{idx}
		} else {
			columns := make([][]uint64, len(rows))
			values := make([][][]byte, len(rows))
			for i := range rows {
				columns[i], values[i] = rows[i].columns, rows[i].values
			}
			var err error
			indices, err = tbl.InsertMany(ctx, columns, values)
			if err != nil {
				return nil, callError(err, st.Table, "insertMany into %s", st.Table)
			}
		}

		if err := mirror.BackfillRowIndexes(ctx, st.Table, indices); err != nil {
			return nil, ir.WrapError(ir.CodeMirrorDiverged, err, "chain committed rows %v but the mirror kept pending indices", indices).
				WithTable(st.Table)
		}
		return indices, nil
	}
	return op, nil
}

// addMirrorDefaults adds cells for schema columns the INSERT did not list
// but the mirror filled in, such as defaults and integer primary keys.
// Returned rows are matched to value rows by their pending sentinel.
func (c *Coordinator) addMirrorDefaults(table string, rows []cells, schema []ir.ColumnDefinition, listed map[uint64]bool, out *store.Result) error {
	if out == nil || len(out.Rows) != len(rows) {
		return ir.Errorf(ir.CodeMirrorDiverged, "mirror returned %d rows for %d inserted", resultLen(out), len(rows)).WithTable(table)
	}
	bk := columnIndexFold(out.Columns, ir.BookkeepingColumn)
	if bk < 0 {
		return ir.Errorf(ir.CodeMirrorDiverged, "mirror result lacks %s", ir.BookkeepingColumn).WithTable(table)
	}
	byRow := make([][]any, len(rows))
	for _, vals := range out.Rows {
		n, ok := vals[bk].(int64)
		r := int(ir.PendingRowIndex - n)
		if !ok || n > ir.PendingRowIndex || r >= len(rows) || byRow[r] != nil {
			return ir.Errorf(ir.CodeMirrorDiverged, "mirror returned unexpected bookkeeping value %v", vals[bk]).WithTable(table)
		}
		byRow[r] = vals
	}

	for r := range rows {
		for _, col := range schema {
			if listed[col.Index] {
				continue
			}
			j := columnIndexFold(out.Columns, col.Name)
			if j < 0 || byRow[r][j] == nil {
				continue
			}
			v, err := ir.FromNative(byRow[r][j])
			if err != nil {
				return ir.WrapError(ir.CodeMirrorDiverged, err, "mirror value of %s", col.Name).WithTable(table).WithColumn(col.Name)
			}
			data, err := c.codec.Encode(v, col.Tag, col.Name)
			if err != nil {
				return withTable(err, table)
			}
			rows[r].add(col.Index, data)
		}
		rows[r].sorted()
	}
	return nil
}

func resultLen(out *store.Result) int {
	if out == nil {
		return 0
	}
	return len(out.Rows)
}

func (c *Coordinator) prepareUpdate(ctx context.Context, db chain.Database, st *queryir.Update) (*operation, error) {
	tbl, schema, err := c.bindTable(ctx, db, st.Table)
	if err != nil {
		return nil, err
	}

	set := make([]ir.ColumnDefinition, len(st.Set))
	for i, a := range st.Set {
		def, err := lookupColumn(schema, st.Table, a.Column)
		if err != nil {
			return nil, err
		}
		set[i] = def
	}

	matches, err := c.executeWhere(ctx, tbl, st.Table, schema, st.Where)
	if err != nil {
		return nil, err
	}

	targets := make([]uint64, len(matches))
	columns := make([][]uint64, len(matches))
	values := make([][][]byte, len(matches))
	for m, row := range matches {
		var cs cells
		for i, a := range st.Set {
			v, err := evalExpr(a.Value, row.env)
			if err != nil {
				return nil, withTable(err, st.Table)
			}
			if ir.IsNull(v) {
				return nil, ir.Errorf(ir.CodeValidation, "cannot write NULL on chain").WithTable(st.Table).WithColumn(set[i].Name)
			}
			data, err := c.codec.Encode(v, set[i].Tag, set[i].Name)
			if err != nil {
				return nil, withTable(err, st.Table)
			}
			cs.add(set[i].Index, data)
		}
		targets[m] = row.index
		columns[m], values[m] = cs.columns, cs.values
	}

	op := &operation{table: st.Table, targets: targets, checkTargets: true}
	op.dispatch = func(ctx context.Context, _ Mirror, _ *store.Result) ([]uint64, error) {
		switch len(targets) {
		case 0:
			return nil, nil
		case 1:
			if err := tbl.UpdateOne(ctx, targets[0], columns[0], values[0]); err != nil {
				return nil, callError(err, st.Table, "updateOne(%d) on %s", targets[0], st.Table)
			}
		default:
			if err := tbl.UpdateMany(ctx, targets, columns, values); err != nil {
				return nil, callError(err, st.Table, "updateMany on %s", st.Table)
			}
		}
		return targets, nil
	}
	return op, nil
}

func (c *Coordinator) prepareDelete(ctx context.Context, db chain.Database, st *queryir.Delete) (*operation, error) {
	tbl, schema, err := c.bindTable(ctx, db, st.Table)
	if err != nil {
		return nil, err
	}
	matches, err := c.executeWhere(ctx, tbl, st.Table, schema, st.Where)
	if err != nil {
		return nil, err
	}
	targets := make([]uint64, len(matches))
	for i, m := range matches {
		targets[i] = m.index
	}

	op := &operation{table: st.Table, targets: targets, checkTargets: true}
	op.dispatch = func(ctx context.Context, _ Mirror, _ *store.Result) ([]uint64, error) {
		switch len(targets) {
		case 0:
			return nil, nil
		case 1:
			if err := tbl.DeleteOne(ctx, targets[0]); err != nil {
				return nil, callError(err, st.Table, "deleteOne(%d) on %s", targets[0], st.Table)
			}
		default:
			if err := tbl.DeleteMany(ctx, targets); err != nil {
				return nil, callError(err, st.Table, "deleteMany on %s", st.Table)
			}
		}
		return targets, nil
	}
	return op, nil
}

func (c *Coordinator) prepareAlter(ctx context.Context, db chain.Database, st *queryir.AlterTable) (*operation, error) {
	tbl, schema, err := c.bindTable(ctx, db, st.Table)
	if err != nil {
		return nil, err
	}

	// Replay the actions over the column names so later actions see
	// earlier ones. Column indices are looked up at dispatch time.
	names := make([]string, len(schema))
	for i, col := range schema {
		names[i] = col.Name
	}

	current := st.Table
	var steps []func(ctx context.Context) error
	for _, action := range st.Actions {
		switch a := action.(type) {
		case *queryir.AddColumn:
			tag, err := columnTag(a.Column, current)
			if err != nil {
				return nil, err
			}
			name := a.Column.Name
			names = append(names, name)
			steps = append(steps, func(ctx context.Context) error {
				if err := tbl.AddColumnType(ctx, name, tag); err != nil {
					return callError(err, st.Table, "addColumnType %s", name)
				}
				return nil
			})

		case *queryir.DropColumn:
			i := columnIndexFold(names, a.Name)
			if i < 0 {
				return nil, ir.Errorf(ir.CodeColumnNotFound, "no such column: %s", a.Name).WithTable(current).WithColumn(a.Name)
			}
			names = slices.Delete(names, i, i+1)
			name := a.Name
			steps = append(steps, func(ctx context.Context) error {
				idx, err := liveColumnIndex(ctx, tbl, st.Table, name)
				if err != nil {
					return err
				}
				if err := tbl.RemoveActiveColumn(ctx, idx); err != nil {
					return callError(err, st.Table, "removeActiveColumn(%d)", idx)
				}
				return nil
			})

		case *queryir.RenameColumn:
			i := columnIndexFold(names, a.From)
			if i < 0 {
				return nil, ir.Errorf(ir.CodeColumnNotFound, "no such column: %s", a.From).WithTable(current).WithColumn(a.From)
			}
			names[i] = a.To
			from, to := a.From, a.To
			steps = append(steps, func(ctx context.Context) error {
				idx, err := liveColumnIndex(ctx, tbl, st.Table, from)
				if err != nil {
					return err
				}
				if err := tbl.RenameColumnType(ctx, idx, to); err != nil {
					return callError(err, st.Table, "renameColumnType(%d, %s)", idx, to)
				}
				return nil
			})

		case *queryir.RenameTable:
			from, to := current, a.To
			current = to
			steps = append(steps, func(ctx context.Context) error {
				_, idx, err := findTable(ctx, db, from)
				if err != nil {
					return callError(err, from, "locate table %s", from)
				}
				if err := db.RenameTable(ctx, uint64(idx), to); err != nil {
					return callError(err, from, "renameTable(%d, %s)", idx, to)
				}
				return nil
			})
		}
	}

	op := &operation{table: st.Table}
	op.dispatch = func(ctx context.Context, _ Mirror, _ *store.Result) ([]uint64, error) {
		for _, step := range steps {
			if err := step(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return op, nil
}

func (c *Coordinator) prepareDrop(ctx context.Context, db chain.Database, st *queryir.DropTable) (*operation, error) {
	op := &operation{table: st.Table}
	_, idx, err := findTable(ctx, db, st.Table)
	if ir.IsCode(err, ir.CodeTableNotFound) && st.IfExists {
		return op, nil
	}
	if err != nil {
		return nil, err
	}

	op.dispatch = func(ctx context.Context, _ Mirror, _ *store.Result) ([]uint64, error) {
		if err := db.DropTable(ctx, uint64(idx)); err != nil {
			return nil, callError(err, st.Table, "dropTable(%d)", idx)
		}
		return nil, nil
	}
	return op, nil
}

// bindTable resolves a table by name and reads its live schema.
func (c *Coordinator) bindTable(ctx context.Context, db chain.Database, table string) (chain.Table, []ir.ColumnDefinition, error) {
	addr, _, err := findTable(ctx, db, table)
	if err != nil {
		return nil, nil, err
	}
	tbl, err := c.gateway.Table(ctx, addr)
	if err != nil {
		return nil, nil, readError(err, "bind table %s", table)
	}
	schema, err := tbl.ActiveColumnTypes(ctx)
	if err != nil {
		return nil, nil, readError(err, "getActiveColumnTypes of %s", table)
	}
	return tbl, schema, nil
}

// findTable returns the address and tableNames position of table. Names
// match case-insensitively, as they do in the mirror.
func findTable(ctx context.Context, db chain.Database, table string) (ir.Address, int, error) {
	names, err := db.TableNames(ctx)
	if err != nil {
		return ir.Address{}, -1, readError(err, "tableNames")
	}
	i := columnIndexFold(names, table)
	if i < 0 {
		return ir.Address{}, -1, ir.Errorf(ir.CodeTableNotFound, "no such table: %s", table).WithTable(table)
	}
	addr, err := db.GetTable(ctx, names[i])
	if err != nil {
		return ir.Address{}, -1, withTable(readError(err, "getTable %s", names[i]), table)
	}
	return addr, i, nil
}

func lookupColumn(schema []ir.ColumnDefinition, table, name string) (ir.ColumnDefinition, error) {
	for _, col := range schema {
		if strings.EqualFold(col.Name, name) {
			return col, nil
		}
	}
	return ir.ColumnDefinition{}, ir.Errorf(ir.CodeColumnNotFound, "no such column: %s", name).WithTable(table).WithColumn(name)
}

// liveColumnIndex reads the current index of an active column.
func liveColumnIndex(ctx context.Context, tbl chain.Table, table, name string) (uint64, error) {
	schema, err := tbl.ActiveColumnTypes(ctx)
	if err != nil {
		return 0, callError(err, table, "getActiveColumnTypes of %s", table)
	}
	col, err := lookupColumn(schema, table, name)
	if err != nil {
		return 0, callError(err, table, "locate column %s", name)
	}
	return col.Index, nil
}

func columnTag(col *queryir.ColumnDef, table string) (ir.TypeTag, error) {
	tag, err := col.Tag()
	if err != nil {
		return 0, ir.WrapError(ir.CodeUnsupportedColumnType, err, "column %s has no on-chain type", col.Name).
			WithTable(table).WithColumn(col.Name)
	}
	return tag, nil
}
