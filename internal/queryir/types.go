package queryir

import (
	"strings"

	"github.com/roach88/seiql/internal/ir"
)

// StatementKind names the supported statement classes.
type StatementKind string

const (
	KindCreate StatementKind = "create"
	KindInsert StatementKind = "insert"
	KindSelect StatementKind = "select"
	KindUpdate StatementKind = "update"
	KindDelete StatementKind = "delete"
	KindAlter  StatementKind = "alter"
	KindDrop   StatementKind = "drop"
)

// Mutates reports whether statements of this kind change state.
func (k StatementKind) Mutates() bool {
	return k != KindSelect
}

// Statement is a parsed SQL statement.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in the generator,
// the augmenter, and the execution coordinator.
type Statement interface {
	statementNode()
	Kind() StatementKind
}

// Expr is a scalar expression.
//
// This is a sealed interface. Expression types:
//   - Literal: number, string, boolean, or NULL
//   - ColumnRef: optionally qualified column name
//   - Binary, Unary, IsNull: operators
//   - FuncCall: scalar function application
//   - Paren: explicit grouping, kept so regenerated SQL matches the source
type Expr interface {
	exprNode()
}

// AlterAction is one action of an ALTER TABLE statement.
// Sealed: AddColumn, DropColumn, RenameColumn, RenameTable.
type AlterAction interface {
	alterActionNode()
}

// CreateTable is CREATE TABLE [IF NOT EXISTS] name (columns...).
type CreateTable struct {
	Table       string
	IfNotExists bool
	Columns     []*ColumnDef
}

func (*CreateTable) statementNode()      {}
func (*CreateTable) Kind() StatementKind { return KindCreate }

// ColumnDef is a column definition.
//
// Type is the type keyword the caller wrote. For domain types the augmenter
// restores it after parsing; Canonical is the generic type the mirror uses.
// When no substitution happened the two are equal.
type ColumnDef struct {
	Name          string
	Type          string
	Canonical     string
	Params        []string // type parameters, e.g. VARCHAR(64)
	TypeOffset    int      // byte offset of the type keyword in the parsed text
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	Default       Expr
}

// Tag maps the declared type keyword to its on-chain tag.
func (c *ColumnDef) Tag() (ir.TypeTag, error) {
	return ir.ParseTypeTag(c.Type)
}

// MirrorType returns the type written to the mirror. FLOAT columns are
// REAL there: NUMERIC affinity would store 12.0 as the integer 12.
func (c *ColumnDef) MirrorType() string {
	t := c.Canonical
	if t == "" {
		t = c.Type
	}
	if tag, err := c.Tag(); err == nil && tag == ir.TagFloat {
		t = "REAL"
	}
	if len(c.Params) > 0 {
		t += "(" + strings.Join(c.Params, ", ") + ")"
	}
	return t
}

// Insert is INSERT INTO table (columns...) VALUES (...), (...).
// ReturnAll appends RETURNING * to the generated SQL.
type Insert struct {
	Table     string
	Columns   []string
	Rows      [][]Expr
	ReturnAll bool
}

func (*Insert) statementNode()      {}
func (*Insert) Kind() StatementKind { return KindInsert }

// Select is SELECT items FROM table [WHERE] [ORDER BY] [LIMIT [OFFSET]].
// Star is set for a bare wildcard until the augmenter expands it.
type Select struct {
	Star    bool
	Items   []SelectItem
	From    string
	Where   Expr
	OrderBy []OrderItem
	Limit   Expr
	Offset  Expr
}

func (*Select) statementNode()      {}
func (*Select) Kind() StatementKind { return KindSelect }

// SelectItem is one projected expression with an optional alias.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// OrderItem is one ORDER BY term.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Update is UPDATE table SET assignments [WHERE].
type Update struct {
	Table     string
	Set       []Assignment
	Where     Expr
	ReturnAll bool
}

func (*Update) statementNode()      {}
func (*Update) Kind() StatementKind { return KindUpdate }

// Assignment is column = value in an UPDATE.
type Assignment struct {
	Column string
	Value  Expr
}

// Delete is DELETE FROM table [WHERE].
type Delete struct {
	Table     string
	Where     Expr
	ReturnAll bool
}

func (*Delete) statementNode()      {}
func (*Delete) Kind() StatementKind { return KindDelete }

// AlterTable is ALTER TABLE table action[, action...].
type AlterTable struct {
	Table   string
	Actions []AlterAction
}

func (*AlterTable) statementNode()      {}
func (*AlterTable) Kind() StatementKind { return KindAlter }

// AddColumn is ADD [COLUMN] definition.
type AddColumn struct {
	Column *ColumnDef
}

func (*AddColumn) alterActionNode() {}

// DropColumn is DROP [COLUMN] name.
type DropColumn struct {
	Name string
}

func (*DropColumn) alterActionNode() {}

// RenameColumn is RENAME [COLUMN] from TO to.
type RenameColumn struct {
	From string
	To   string
}

func (*RenameColumn) alterActionNode() {}

// RenameTable is RENAME TO name.
type RenameTable struct {
	To string
}

func (*RenameTable) alterActionNode() {}

// DropTable is DROP TABLE [IF EXISTS] table.
type DropTable struct {
	Table    string
	IfExists bool
}

func (*DropTable) statementNode()      {}
func (*DropTable) Kind() StatementKind { return KindDrop }

// LiteralKind classifies a literal by its lexical form.
type LiteralKind int

const (
	LitNumber LiteralKind = iota
	LitString
	LitBool
	LitNull
)

// Literal is a constant in the source text.
//
// Text holds the number as written or the unquoted string content. Value
// and Tag are filled by the augmenter's tagging pass; Tagged reports
// whether that pass has run for this node.
type Literal struct {
	Kind   LiteralKind
	Text   string
	Tagged bool
	Tag    ir.TypeTag
	Value  ir.IRValue
}

func (*Literal) exprNode() {}

// ColumnRef names a column, optionally qualified by table.
type ColumnRef struct {
	Table string
	Name  string
}

func (*ColumnRef) exprNode() {}

// Binary is a binary operator application. Op is the canonical upper-case
// spelling: OR AND = != < <= > >= + - * / % ||.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// Unary is NOT, unary minus, or unary plus.
type Unary struct {
	Op      string
	Operand Expr
}

func (*Unary) exprNode() {}

// IsNull is expr IS [NOT] NULL.
type IsNull struct {
	Operand Expr
	Not     bool
}

func (*IsNull) exprNode() {}

// FuncCall is name(args...). Star marks COUNT(*).
type FuncCall struct {
	Name string
	Args []Expr
	Star bool
}

func (*FuncCall) exprNode() {}

// Paren is a parenthesized expression.
type Paren struct {
	Inner Expr
}

func (*Paren) exprNode() {}

// StatementTable returns the table a statement targets, or "" for a
// SELECT without FROM.
func StatementTable(s Statement) string {
	switch st := s.(type) {
	case *CreateTable:
		return st.Table
	case *Insert:
		return st.Table
	case *Select:
		return st.From
	case *Update:
		return st.Table
	case *Delete:
		return st.Table
	case *AlterTable:
		return st.Table
	case *DropTable:
		return st.Table
	default:
		return ""
	}
}
