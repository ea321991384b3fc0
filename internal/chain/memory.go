package chain

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/roach88/seiql/internal/ir"
)

// Operation names used in the call log and for fault injection.
const (
	OpCreateDatabase     = "createDatabase"
	OpCreateTable        = "createTable"
	OpDropTable          = "dropTable"
	OpRenameTable        = "renameTable"
	OpAddColumnType      = "addColumnType"
	OpRemoveActiveColumn = "removeActiveColumn"
	OpRenameColumnType   = "renameColumnType"
	OpInsertOne          = "insertOne"
	OpInsertMany         = "insertMany"
	OpUpdateOne          = "updateOne"
	OpUpdateMany         = "updateMany"
	OpDeleteOne          = "deleteOne"
	OpDeleteMany         = "deleteMany"
)

// Call is one state-changing call recorded by Memory.
type Call struct {
	Op     string         `json:"op"`
	Target ir.Address     `json:"target"`
	Args   map[string]any `json:"args,omitempty"`
}

// Memory is an in-process development chain. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	state  memState
	calls  []Call
	faults map[string]error
}

type memState struct {
	Nonce     uint64                      `json:"nonce"`
	Databases map[ir.Address]*memDatabase `json:"databases"`
	Tables    map[ir.Address]*memTable    `json:"tables"`
}

type memDatabase struct {
	Owner  ir.Address   `json:"owner"`
	Name   string       `json:"name"`
	Names  []string     `json:"names"`
	Tables []ir.Address `json:"tables"`
}

type memColumn struct {
	Name   string     `json:"name"`
	Tag    ir.TypeTag `json:"tag"`
	Active bool       `json:"active"`
}

type memRow struct {
	Deleted bool              `json:"deleted,omitempty"`
	Cells   map[uint64][]byte `json:"cells,omitempty"`
}

type memTable struct {
	Columns []memColumn `json:"columns"`
	Rows    []memRow    `json:"rows"`
}

// NewMemory creates an empty development chain.
func NewMemory() *Memory {
	return &Memory{
		state: memState{
			Databases: make(map[ir.Address]*memDatabase),
			Tables:    make(map[ir.Address]*memTable),
		},
		faults: make(map[string]error),
	}
}

// CreateDatabase deploys a database owned by owner.
func (m *Memory) CreateDatabase(_ context.Context, owner ir.Address, name string) (ir.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFault(OpCreateDatabase); err != nil {
		return ir.Address{}, err
	}
	for _, db := range m.state.Databases {
		if db.Owner == owner && db.Name == name {
			return ir.Address{}, fmt.Errorf("database %q: %w", name, ErrNameTaken)
		}
	}
	m.state.Nonce++
	addr := ir.DeriveDatabaseAddress(owner, name, m.state.Nonce)
	m.state.Databases[addr] = &memDatabase{Owner: owner, Name: name}
	m.record(OpCreateDatabase, owner, map[string]any{"name": name, "address": addr.Hex()})
	return addr, nil
}

// FailOn makes the next call of op fail with err without changing state.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = err
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) takeFault(op string) error {
	if err, ok := m.faults[op]; ok {
		delete(m.faults, op)
		return err
	}
	return nil
}

func (m *Memory) record(op string, target ir.Address, args map[string]any) {
	m.calls = append(m.calls, Call{Op: op, Target: target, Args: args})
}

// Database binds the database contract at addr.
func (m *Memory) Database(_ context.Context, addr ir.Address) (Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.Databases[addr]; !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrDatabaseNotFound)
	}
	return &memDatabaseHandle{m: m, addr: addr}, nil
}

// Table binds the table contract at addr.
func (m *Memory) Table(_ context.Context, addr ir.Address) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.Tables[addr]; !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrTableNotFound)
	}
	return &memTableHandle{m: m, addr: addr}, nil
}

// TypeCheck validates data against the byte layout of tag.
func TypeCheck(tag ir.TypeTag, data []byte) error {
	want := -1
	switch tag {
	case ir.TagInteger:
		want = 32
	case ir.TagFloat:
		want = 8
	case ir.TagBool:
		if len(data) != 1 || data[0] > 1 {
			return fmt.Errorf("BOOL must be one byte 0x00 or 0x01: %w", ErrTypeCheck)
		}
		return nil
	case ir.TagAddress:
		want = ir.AddressLength
	case ir.TagText:
		if !utf8.Valid(data) {
			return fmt.Errorf("TEXT must be valid UTF-8: %w", ErrTypeCheck)
		}
		return nil
	case ir.TagBlob:
		return nil
	default:
		return fmt.Errorf("unknown type tag %d: %w", tag, ErrTypeCheck)
	}
	if len(data) != want {
		return fmt.Errorf("%s must be %d bytes, got %d: %w", tag, want, len(data), ErrTypeCheck)
	}
	return nil
}

type memDatabaseHandle struct {
	m    *Memory
	addr ir.Address
}

func (h *memDatabaseHandle) db() *memDatabase {
	return h.m.state.Databases[h.addr]
}

func (h *memDatabaseHandle) CreateTable(_ context.Context, names []string, tags []ir.TypeTag, name string) (ir.Address, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpCreateTable); err != nil {
		return ir.Address{}, err
	}
	db := h.db()
	if len(names) != len(tags) {
		return ir.Address{}, fmt.Errorf("createTable: %d names, %d types: %w", len(names), len(tags), ErrLengthMismatch)
	}
	if name == "" {
		return ir.Address{}, fmt.Errorf("createTable: empty table name")
	}
	if slices.Contains(db.Names, name) {
		return ir.Address{}, fmt.Errorf("table %q: %w", name, ErrNameTaken)
	}
	cols := make([]memColumn, len(names))
	for i, n := range names {
		if !tags[i].Valid() {
			return ir.Address{}, fmt.Errorf("column %q: unknown type tag %d: %w", n, tags[i], ErrTypeCheck)
		}
		if slices.ContainsFunc(cols[:i], func(c memColumn) bool { return c.Name == n }) {
			return ir.Address{}, fmt.Errorf("column %q: %w", n, ErrNameTaken)
		}
		cols[i] = memColumn{Name: n, Tag: tags[i], Active: true}
	}

	h.m.state.Nonce++
	addr := ir.DeriveTableAddress(h.addr, name, h.m.state.Nonce)
	h.m.state.Tables[addr] = &memTable{Columns: cols}
	db.Names = append(db.Names, name)
	db.Tables = append(db.Tables, addr)

	tagArgs := make([]any, len(tags))
	for i, t := range tags {
		tagArgs[i] = uint64(t)
	}
	h.m.record(OpCreateTable, h.addr, map[string]any{"names": slices.Clone(names), "types": tagArgs, "name": name})
	return addr, nil
}

func (h *memDatabaseHandle) DropTable(_ context.Context, index uint64) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpDropTable); err != nil {
		return err
	}
	db := h.db()
	if index >= uint64(len(db.Names)) {
		return fmt.Errorf("dropTable(%d): %w", index, ErrIndexOutOfRange)
	}
	delete(h.m.state.Tables, db.Tables[index])
	db.Names = slices.Delete(db.Names, int(index), int(index)+1)
	db.Tables = slices.Delete(db.Tables, int(index), int(index)+1)
	h.m.record(OpDropTable, h.addr, map[string]any{"index": index})
	return nil
}

func (h *memDatabaseHandle) RenameTable(_ context.Context, index uint64, name string) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpRenameTable); err != nil {
		return err
	}
	db := h.db()
	if index >= uint64(len(db.Names)) {
		return fmt.Errorf("renameTable(%d): %w", index, ErrIndexOutOfRange)
	}
	if slices.Contains(db.Names, name) {
		return fmt.Errorf("table %q: %w", name, ErrNameTaken)
	}
	db.Names[index] = name
	h.m.record(OpRenameTable, h.addr, map[string]any{"index": index, "name": name})
	return nil
}

func (h *memDatabaseHandle) TableNames(context.Context) ([]string, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return slices.Clone(h.db().Names), nil
}

func (h *memDatabaseHandle) GetTable(_ context.Context, name string) (ir.Address, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	db := h.db()
	i := slices.Index(db.Names, name)
	if i < 0 {
		return ir.Address{}, fmt.Errorf("table %q: %w", name, ErrTableNotFound)
	}
	return db.Tables[i], nil
}

type memTableHandle struct {
	m    *Memory
	addr ir.Address
}

// table returns the bound table, or ErrTableNotFound after a drop.
func (h *memTableHandle) table() (*memTable, error) {
	t, ok := h.m.state.Tables[h.addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h.addr.Hex(), ErrTableNotFound)
	}
	return t, nil
}

func (t *memTable) activeIndex(name string) int {
	return slices.IndexFunc(t.Columns, func(c memColumn) bool { return c.Active && c.Name == name })
}

// checkCells validates one row's column indices and values.
func (t *memTable) checkCells(columns []uint64, values [][]byte) error {
	if len(columns) != len(values) {
		return fmt.Errorf("%d columns, %d values: %w", len(columns), len(values), ErrLengthMismatch)
	}
	for i, c := range columns {
		if c >= uint64(len(t.Columns)) || !t.Columns[c].Active {
			return fmt.Errorf("column %d: %w", c, ErrColumnNotFound)
		}
		if slices.Contains(columns[:i], c) {
			return fmt.Errorf("column %d given twice: %w", c, ErrLengthMismatch)
		}
		if err := TypeCheck(t.Columns[c].Tag, values[i]); err != nil {
			return fmt.Errorf("column %q: %w", t.Columns[c].Name, err)
		}
	}
	return nil
}

func (t *memTable) liveRow(row uint64) (*memRow, error) {
	if row >= uint64(len(t.Rows)) || t.Rows[row].Deleted {
		return nil, fmt.Errorf("row %d: %w", row, ErrRowNotFound)
	}
	return &t.Rows[row], nil
}

func (r *memRow) set(columns []uint64, values [][]byte) {
	if r.Cells == nil {
		r.Cells = make(map[uint64][]byte, len(columns))
	}
	for i, c := range columns {
		r.Cells[c] = slices.Clone(values[i])
	}
}

func (t *memTable) appendRow(columns []uint64, values [][]byte) uint64 {
	cells := make(map[uint64][]byte, len(columns))
	for i, c := range columns {
		cells[c] = slices.Clone(values[i])
	}
	t.Rows = append(t.Rows, memRow{Cells: cells})
	return uint64(len(t.Rows) - 1)
}

func cellArgs(columns []uint64, values [][]byte) map[string]any {
	cols := make([]any, len(columns))
	vals := make([]any, len(values))
	for i := range columns {
		cols[i] = columns[i]
		vals[i] = slices.Clone(values[i])
	}
	return map[string]any{"columns": cols, "values": vals}
}

func (h *memTableHandle) AddColumnType(_ context.Context, name string, tag ir.TypeTag) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpAddColumnType); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	if !tag.Valid() {
		return fmt.Errorf("column %q: unknown type tag %d: %w", name, tag, ErrTypeCheck)
	}
	if t.activeIndex(name) >= 0 {
		return fmt.Errorf("column %q: %w", name, ErrNameTaken)
	}
	t.Columns = append(t.Columns, memColumn{Name: name, Tag: tag, Active: true})
	h.m.record(OpAddColumnType, h.addr, map[string]any{"name": name, "type": uint64(tag)})
	return nil
}

func (h *memTableHandle) RemoveActiveColumn(_ context.Context, columnIndex uint64) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpRemoveActiveColumn); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	if columnIndex >= uint64(len(t.Columns)) || !t.Columns[columnIndex].Active {
		return fmt.Errorf("column %d: %w", columnIndex, ErrColumnNotFound)
	}
	t.Columns[columnIndex].Active = false
	h.m.record(OpRemoveActiveColumn, h.addr, map[string]any{"index": columnIndex})
	return nil
}

func (h *memTableHandle) RenameColumnType(_ context.Context, columnIndex uint64, name string) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpRenameColumnType); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	if columnIndex >= uint64(len(t.Columns)) || !t.Columns[columnIndex].Active {
		return fmt.Errorf("column %d: %w", columnIndex, ErrColumnNotFound)
	}
	if t.activeIndex(name) >= 0 {
		return fmt.Errorf("column %q: %w", name, ErrNameTaken)
	}
	t.Columns[columnIndex].Name = name
	h.m.record(OpRenameColumnType, h.addr, map[string]any{"index": columnIndex, "name": name})
	return nil
}

func (h *memTableHandle) InsertOne(_ context.Context, columns []uint64, values [][]byte) (uint64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpInsertOne); err != nil {
		return 0, err
	}
	t, err := h.table()
	if err != nil {
		return 0, err
	}
	if err := t.checkCells(columns, values); err != nil {
		return 0, fmt.Errorf("insertOne: %w", err)
	}
	row := t.appendRow(columns, values)
	h.m.record(OpInsertOne, h.addr, cellArgs(columns, values))
	return row, nil
}

func (h *memTableHandle) InsertMany(_ context.Context, columns [][]uint64, values [][][]byte) ([]uint64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpInsertMany); err != nil {
		return nil, err
	}
	t, err := h.table()
	if err != nil {
		return nil, err
	}
	if len(columns) != len(values) {
		return nil, fmt.Errorf("insertMany: %d column sets, %d value sets: %w", len(columns), len(values), ErrLengthMismatch)
	}
	for i := range columns {
		if err := t.checkCells(columns[i], values[i]); err != nil {
			return nil, fmt.Errorf("insertMany row %d: %w", i, err)
		}
	}

	rows := make([]uint64, len(columns))
	batch := make([]any, len(columns))
	for i := range columns {
		rows[i] = t.appendRow(columns[i], values[i])
		batch[i] = cellArgs(columns[i], values[i])
	}
	h.m.record(OpInsertMany, h.addr, map[string]any{"rows": batch})
	return rows, nil
}

func (h *memTableHandle) UpdateOne(_ context.Context, row uint64, columns []uint64, values [][]byte) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpUpdateOne); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	r, err := t.liveRow(row)
	if err != nil {
		return fmt.Errorf("updateOne: %w", err)
	}
	if err := t.checkCells(columns, values); err != nil {
		return fmt.Errorf("updateOne: %w", err)
	}
	r.set(columns, values)
	args := cellArgs(columns, values)
	args["row"] = row
	h.m.record(OpUpdateOne, h.addr, args)
	return nil
}

func (h *memTableHandle) UpdateMany(_ context.Context, rows []uint64, columns [][]uint64, values [][][]byte) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpUpdateMany); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	if len(rows) != len(columns) || len(rows) != len(values) {
		return fmt.Errorf("updateMany: %w", ErrLengthMismatch)
	}
	for i, row := range rows {
		if _, err := t.liveRow(row); err != nil {
			return fmt.Errorf("updateMany: %w", err)
		}
		if err := t.checkCells(columns[i], values[i]); err != nil {
			return fmt.Errorf("updateMany row %d: %w", row, err)
		}
	}

	batch := make([]any, len(rows))
	for i, row := range rows {
		t.Rows[row].set(columns[i], values[i])
		args := cellArgs(columns[i], values[i])
		args["row"] = row
		batch[i] = args
	}
	h.m.record(OpUpdateMany, h.addr, map[string]any{"rows": batch})
	return nil
}

func (h *memTableHandle) DeleteOne(_ context.Context, row uint64) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpDeleteOne); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	r, err := t.liveRow(row)
	if err != nil {
		return fmt.Errorf("deleteOne: %w", err)
	}
	r.Deleted = true
	r.Cells = nil
	h.m.record(OpDeleteOne, h.addr, map[string]any{"row": row})
	return nil
}

func (h *memTableHandle) DeleteMany(_ context.Context, rows []uint64) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if err := h.m.takeFault(OpDeleteMany); err != nil {
		return err
	}
	t, err := h.table()
	if err != nil {
		return err
	}
	for i, row := range rows {
		if _, err := t.liveRow(row); err != nil {
			return fmt.Errorf("deleteMany: %w", err)
		}
		if slices.Contains(rows[:i], row) {
			return fmt.Errorf("deleteMany: row %d given twice: %w", row, ErrRowNotFound)
		}
	}
	args := make([]any, len(rows))
	for i, row := range rows {
		t.Rows[row].Deleted = true
		t.Rows[row].Cells = nil
		args[i] = row
	}
	h.m.record(OpDeleteMany, h.addr, map[string]any{"rows": args})
	return nil
}

func (h *memTableHandle) ActiveColumnTypes(context.Context) ([]ir.ColumnDefinition, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	t, err := h.table()
	if err != nil {
		return nil, err
	}
	var out []ir.ColumnDefinition
	for i, c := range t.Columns {
		if c.Active {
			out = append(out, ir.ColumnDefinition{Name: c.Name, Tag: c.Tag, Index: uint64(i)})
		}
	}
	return out, nil
}

func (h *memTableHandle) ReadRow(_ context.Context, row uint64) (ir.Row, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	t, err := h.table()
	if err != nil {
		return ir.Row{}, err
	}
	r, err := t.liveRow(row)
	if err != nil {
		return ir.Row{}, err
	}
	out := ir.Row{Index: row}
	for i, c := range t.Columns {
		if !c.Active {
			continue
		}
		if data, ok := r.Cells[uint64(i)]; ok {
			out.Cells = append(out.Cells, ir.Cell{ColumnIndex: uint64(i), Data: slices.Clone(data)})
		}
	}
	return out, nil
}

func (h *memTableHandle) RowCount(context.Context) (uint64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	t, err := h.table()
	if err != nil {
		return 0, err
	}
	return uint64(len(t.Rows)), nil
}
