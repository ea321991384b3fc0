// Package sqlparse parses the generic SQL subset into queryir statements.
//
// The grammar covers CREATE TABLE, INSERT, SELECT, UPDATE, DELETE,
// ALTER TABLE, and DROP TABLE. Domain column types are not special here:
// the augmenter substitutes them before parsing and restores them after.
//
// Double-quoted text is a string literal in expression positions and an
// identifier in name positions. Backticks and brackets always quote names.
package sqlparse

import (
	"fmt"
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// reserved words cannot be used as bare identifiers.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "ORDER": true, "BY": true,
	"LIMIT": true, "OFFSET": true, "AS": true, "CREATE": true, "TABLE": true,
	"DROP": true, "INSERT": true, "INTO": true, "VALUES": true, "UPDATE": true,
	"SET": true, "DELETE": true, "ALTER": true, "ADD": true, "RENAME": true,
	"AND": true, "OR": true, "NOT": true, "IS": true, "NULL": true,
	"TRUE": true, "FALSE": true, "PRIMARY": true, "UNIQUE": true,
	"DEFAULT": true, "RETURNING": true, "GROUP": true, "HAVING": true,
	"JOIN": true, "ON": true, "UNION": true, "IN": true, "LIKE": true,
	"BETWEEN": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true,
	"END": true, "CHECK": true, "CONSTRAINT": true, "REFERENCES": true,
	"FOREIGN": true, "COLLATE": true, "DISTINCT": true, "EXISTS": true,
}

// IsReserved reports whether word needs quoting to be used as a name.
func IsReserved(word string) bool {
	return reserved[strings.ToUpper(word)]
}

// columnConstraintStart lists words that end a multi-word type name.
var columnConstraintStart = map[string]bool{
	"PRIMARY": true, "NOT": true, "NULL": true, "UNIQUE": true, "DEFAULT": true,
	"CHECK": true, "REFERENCES": true, "COLLATE": true, "CONSTRAINT": true,
	"AUTOINCREMENT": true,
}

// Parser is a recursive-descent parser over a token slice.
type Parser struct {
	toks []Token
	i    int
}

// Parse parses exactly one statement, optionally followed by a semicolon.
func Parse(sql string) (queryir.Statement, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur().IsSymbol(";") {
		p.next()
	}
	if p.cur().Typ != TokEOF {
		return nil, p.errf("multiple statements are not supported")
	}
	if err := queryir.Validate(stmt); err != nil {
		return nil, ir.WrapError(ir.CodeParse, err, "invalid statement")
	}
	return stmt, nil
}

func (p *Parser) cur() Token {
	return p.toks[p.i]
}

func (p *Parser) peekTok(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *Parser) next() {
	if p.i < len(p.toks)-1 {
		p.i++
	}
}

func (p *Parser) accept(word string) bool {
	if p.cur().Is(word) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) acceptSymbol(sym string) bool {
	if p.cur().IsSymbol(sym) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(word string) error {
	if p.accept(word) {
		return nil
	}
	return p.errf("expected %s", word)
}

func (p *Parser) expectSymbol(sym string) error {
	if p.acceptSymbol(sym) {
		return nil
	}
	return p.errf("expected %q", sym)
}

func (p *Parser) errf(format string, args ...any) *ir.Error {
	tok := p.cur()
	near := tok.Val
	if tok.Typ == TokEOF {
		near = "end of input"
	}
	return ir.Errorf(ir.CodeParse, "near %q at offset %d: %s", near, tok.Pos, fmt.Sprintf(format, args...))
}

func unsupported(format string, args ...any) *ir.Error {
	return ir.Errorf(ir.CodeUnsupportedQueryType, format, args...)
}

// ParseStatement dispatches on the leading keyword.
func (p *Parser) ParseStatement() (queryir.Statement, error) {
	tok := p.cur()
	if tok.Typ != TokWord {
		if tok.Typ == TokEOF {
			return nil, p.errf("empty statement")
		}
		return nil, p.errf("expected a statement keyword")
	}
	switch tok.Upper {
	case "CREATE":
		return p.parseCreate()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "ALTER":
		return p.parseAlter()
	case "DROP":
		return p.parseDrop()
	default:
		return nil, unsupported("%s statements are not supported", tok.Upper)
	}
}

// parseIdent reads a table or column name.
func (p *Parser) parseIdent(what string) (string, error) {
	tok := p.cur()
	switch tok.Typ {
	case TokWord:
		if reserved[tok.Upper] {
			return "", p.errf("expected %s name, got reserved word %s", what, tok.Upper)
		}
		p.next()
		return tok.Val, nil
	case TokQuotedIdent, TokDQString:
		if tok.Val == "" {
			return "", p.errf("empty %s name", what)
		}
		p.next()
		return tok.Val, nil
	default:
		return "", p.errf("expected %s name", what)
	}
}

func (p *Parser) rejectReturning() error {
	if p.cur().Is("RETURNING") {
		return p.errf("RETURNING clauses are added automatically and may not be written")
	}
	return nil
}

func (p *Parser) parseCreate() (queryir.Statement, error) {
	p.next() // CREATE
	if p.cur().Is("TEMP") || p.cur().Is("TEMPORARY") {
		return nil, unsupported("temporary tables are not supported")
	}
	if !p.cur().Is("TABLE") {
		return nil, unsupported("CREATE %s is not supported", p.cur().Upper)
	}
	p.next()

	stmt := &queryir.CreateTable{}
	if p.cur().Is("IF") {
		p.next()
		if err := p.expect("NOT"); err != nil {
			return nil, err
		}
		if err := p.expect("EXISTS"); err != nil {
			return nil, err
		}
		stmt.IfNotExists = true
	}

	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt.Table = name

	if p.cur().Is("AS") {
		return nil, unsupported("CREATE TABLE ... AS SELECT is not supported")
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, ir.Errorf(ir.CodeMissingColumnDefinitions, "CREATE TABLE %s has no column definitions", name)
	}
	if p.cur().IsSymbol(")") {
		return nil, ir.Errorf(ir.CodeMissingColumnDefinitions, "CREATE TABLE %s has no column definitions", name)
	}

	for {
		if t := p.cur(); t.Is("PRIMARY") || t.Is("UNIQUE") || t.Is("FOREIGN") || t.Is("CONSTRAINT") || t.Is("CHECK") {
			return nil, p.errf("table constraints are not supported; declare constraints on the column")
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if p.cur().Is("WITHOUT") || p.cur().Is("STRICT") {
		return nil, p.errf("table options are not supported")
	}
	return stmt, nil
}

// parseColumnDef reads: name type[(n[, m])] constraint*
func (p *Parser) parseColumnDef() (*queryir.ColumnDef, error) {
	name, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	col := &queryir.ColumnDef{Name: name}

	typeTok := p.cur()
	if typeTok.Typ != TokWord || columnConstraintStart[typeTok.Upper] {
		return nil, p.errf("column %s has no type", name)
	}
	col.TypeOffset = typeTok.Pos
	words := []string{typeTok.Upper}
	p.next()
	for p.cur().Typ == TokWord && !columnConstraintStart[p.cur().Upper] {
		words = append(words, p.cur().Upper)
		p.next()
	}
	col.Type = strings.Join(words, " ")
	col.Canonical = col.Type

	if p.acceptSymbol("(") {
		for {
			neg := p.acceptSymbol("-")
			if p.cur().Typ != TokNumber {
				return nil, p.errf("expected numeric type parameter")
			}
			param := p.cur().Val
			if neg {
				param = "-" + param
			}
			col.Params = append(col.Params, param)
			p.next()
			if p.acceptSymbol(",") {
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}

	for {
		tok := p.cur()
		switch {
		case tok.Is("PRIMARY"):
			p.next()
			if err := p.expect("KEY"); err != nil {
				return nil, err
			}
			col.PrimaryKey = true
			if !p.accept("ASC") {
				p.accept("DESC")
			}
			if p.accept("AUTOINCREMENT") {
				col.AutoIncrement = true
			}
		case tok.Is("NOT"):
			p.next()
			if err := p.expect("NULL"); err != nil {
				return nil, err
			}
			col.NotNull = true
		case tok.Is("NULL"):
			p.next()
		case tok.Is("UNIQUE"):
			p.next()
			col.Unique = true
		case tok.Is("DEFAULT"):
			p.next()
			def, err := p.parseDefault()
			if err != nil {
				return nil, err
			}
			col.Default = def
		case tok.Is("CHECK"), tok.Is("REFERENCES"), tok.Is("COLLATE"), tok.Is("CONSTRAINT"):
			return nil, p.errf("column constraint %s is not supported", tok.Upper)
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseDefault() (queryir.Expr, error) {
	if p.cur().IsSymbol("(") {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &queryir.Paren{Inner: e}, nil
	}
	if p.cur().IsSymbol("-") || p.cur().IsSymbol("+") {
		op := p.cur().Val
		p.next()
		if p.cur().Typ != TokNumber {
			return nil, p.errf("expected number after %s", op)
		}
		lit, _ := p.parsePrimary()
		return &queryir.Unary{Op: op, Operand: lit}, nil
	}
	switch p.cur().Typ {
	case TokNumber, TokString, TokDQString:
		return p.parsePrimary()
	case TokWord:
		if u := p.cur().Upper; u == "NULL" || u == "TRUE" || u == "FALSE" {
			return p.parsePrimary()
		}
	}
	return nil, p.errf("DEFAULT must be a literal or a parenthesized expression")
}

func (p *Parser) parseInsert() (queryir.Statement, error) {
	p.next() // INSERT
	if p.cur().Is("OR") {
		return nil, unsupported("INSERT OR %s is not supported", p.peekTok(1).Upper)
	}
	if err := p.expect("INTO"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &queryir.Insert{Table: name}

	if !p.acceptSymbol("(") {
		return nil, ir.Errorf(ir.CodeMissingColumnDefinitions, "INSERT INTO %s must list its columns", name)
	}
	for {
		col, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	if p.cur().Is("SELECT") || p.cur().Is("DEFAULT") {
		return nil, unsupported("INSERT without VALUES is not supported")
	}
	if err := p.expect("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var row []queryir.Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.acceptSymbol(",") {
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	if p.cur().Is("ON") {
		return nil, p.errf("upsert clauses are not supported")
	}
	if err := p.rejectReturning(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (queryir.Statement, error) {
	p.next() // SELECT
	if p.cur().Is("DISTINCT") || p.cur().Is("ALL") {
		return nil, p.errf("%s is not supported", p.cur().Upper)
	}
	stmt := &queryir.Select{}

	if p.cur().IsSymbol("*") {
		p.next()
		stmt.Star = true
	} else {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := queryir.SelectItem{Expr: e}
			if p.accept("AS") {
				alias, err := p.parseIdent("alias")
				if err != nil {
					return nil, err
				}
				item.Alias = alias
			} else if t := p.cur(); (t.Typ == TokWord && !reserved[t.Upper]) || t.Typ == TokQuotedIdent {
				item.Alias = t.Val
				p.next()
			}
			stmt.Items = append(stmt.Items, item)
			if p.acceptSymbol(",") {
				continue
			}
			break
		}
	}

	if p.accept("FROM") {
		name, err := p.parseIdent("table")
		if err != nil {
			return nil, err
		}
		stmt.From = name
		if p.acceptSymbol(",") || p.cur().Is("JOIN") || p.cur().Is("INNER") || p.cur().Is("LEFT") || p.cur().Is("CROSS") {
			return nil, p.errf("joins are not supported")
		}
	}

	if p.accept("WHERE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}
	if p.cur().Is("GROUP") || p.cur().Is("HAVING") || p.cur().Is("UNION") {
		return nil, p.errf("%s is not supported", p.cur().Upper)
	}
	if p.accept("ORDER") {
		if err := p.expect("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := queryir.OrderItem{Expr: e}
			if p.accept("DESC") {
				item.Desc = true
			} else {
				p.accept("ASC")
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if p.acceptSymbol(",") {
				continue
			}
			break
		}
	}
	if p.accept("LIMIT") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Limit = e
		if p.accept("OFFSET") {
			off, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.Offset = off
		}
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (queryir.Statement, error) {
	p.next() // UPDATE
	if p.cur().Is("OR") {
		return nil, unsupported("UPDATE OR %s is not supported", p.peekTok(1).Upper)
	}
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &queryir.Update{Table: name}
	if err := p.expect("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		if !p.acceptSymbol("=") {
			return nil, p.errf("expected = after %s", col)
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, queryir.Assignment{Column: col, Value: val})
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	if p.cur().Is("FROM") {
		return nil, p.errf("UPDATE ... FROM is not supported")
	}
	if p.accept("WHERE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}
	if err := p.rejectReturning(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (queryir.Statement, error) {
	p.next() // DELETE
	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &queryir.Delete{Table: name}
	if p.accept("WHERE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}
	if err := p.rejectReturning(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseAlter() (queryir.Statement, error) {
	p.next() // ALTER
	if !p.cur().Is("TABLE") {
		return nil, unsupported("ALTER %s is not supported", p.cur().Upper)
	}
	p.next()
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &queryir.AlterTable{Table: name}

	for {
		action, err := p.parseAlterAction()
		if err != nil {
			return nil, err
		}
		stmt.Actions = append(stmt.Actions, action)
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseAlterAction() (queryir.AlterAction, error) {
	switch {
	case p.accept("ADD"):
		p.accept("COLUMN")
		if t := p.cur(); t.Is("PRIMARY") || t.Is("UNIQUE") || t.Is("CONSTRAINT") || t.Is("FOREIGN") || t.Is("CHECK") {
			return nil, p.errf("table constraints are not supported")
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		return &queryir.AddColumn{Column: col}, nil

	case p.accept("DROP"):
		p.accept("COLUMN")
		col, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		return &queryir.DropColumn{Name: col}, nil

	case p.accept("RENAME"):
		if p.accept("TO") {
			to, err := p.parseIdent("table")
			if err != nil {
				return nil, err
			}
			return &queryir.RenameTable{To: to}, nil
		}
		p.accept("COLUMN")
		from, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		if err := p.expect("TO"); err != nil {
			return nil, err
		}
		to, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		return &queryir.RenameColumn{From: from, To: to}, nil

	default:
		return nil, p.errf("expected ADD, DROP, or RENAME")
	}
}

func (p *Parser) parseDrop() (queryir.Statement, error) {
	p.next() // DROP
	if !p.cur().Is("TABLE") {
		return nil, unsupported("DROP %s is not supported", p.cur().Upper)
	}
	p.next()
	stmt := &queryir.DropTable{}
	if p.accept("IF") {
		if err := p.expect("EXISTS"); err != nil {
			return nil, err
		}
		stmt.IfExists = true
	}
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt.Table = name
	return stmt, nil
}
