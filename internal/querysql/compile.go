// Package querysql regenerates SQLite SQL from queryir statements.
//
// The generator double-quotes every identifier. Cleanup then strips the
// quotes that are not needed so the mirror SQL reads like hand-written SQL.
package querysql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
	"github.com/roach88/seiql/internal/sqlparse"
)

// SQLCompiler renders statements in the mirror's SQL dialect.
type SQLCompiler struct {
	// Clean runs Cleanup over every generated statement.
	Clean bool
}

// NewSQLCompiler creates a compiler that cleans up identifier quoting.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Clean: true}
}

// Compile renders stmt as one or more SQL statements, each terminated
// by a semicolon. ALTER TABLE yields one statement per action; everything
// else yields exactly one.
func (c *SQLCompiler) Compile(stmt queryir.Statement) ([]string, error) {
	if stmt == nil {
		return nil, fmt.Errorf("cannot compile nil statement")
	}

	var out []string
	switch s := stmt.(type) {
	case *queryir.CreateTable:
		out = []string{compileCreate(s)}
	case *queryir.Insert:
		out = []string{compileInsert(s)}
	case *queryir.Select:
		out = []string{compileSelect(s)}
	case *queryir.Update:
		out = []string{compileUpdate(s)}
	case *queryir.Delete:
		out = []string{compileDelete(s)}
	case *queryir.AlterTable:
		stmts, err := compileAlter(s)
		if err != nil {
			return nil, err
		}
		out = stmts
	case *queryir.DropTable:
		out = []string{compileDrop(s)}
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}

	if c.Clean {
		for i := range out {
			out[i] = Cleanup(out[i])
		}
	}
	return out, nil
}

// CompileString renders stmt and joins multiple statements with a space.
func (c *SQLCompiler) CompileString(stmt queryir.Statement) (string, error) {
	stmts, err := c.Compile(stmt)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, " "), nil
}

// Compile renders stmt with the default compiler.
func Compile(stmt queryir.Statement) ([]string, error) {
	return NewSQLCompiler().Compile(stmt)
}

func compileCreate(s *queryir.CreateTable) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if s.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(QuoteIdent(s.Table))
	b.WriteString(" (")
	for i, col := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(compileColumnDef(col))
	}
	b.WriteString(");")
	return b.String()
}

func compileColumnDef(col *queryir.ColumnDef) string {
	parts := []string{QuoteIdent(col.Name), col.MirrorType()}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
		if col.AutoIncrement {
			parts = append(parts, "AUTOINCREMENT")
		}
	}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+compileExpr(col.Default))
	}
	return strings.Join(parts, " ")
}

func compileInsert(s *queryir.Insert) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdent(s.Table))
	b.WriteString(" (")
	b.WriteString(quoteList(s.Columns))
	b.WriteString(") VALUES ")
	for i, row := range s.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(compileExprList(row))
		b.WriteString(")")
	}
	if s.ReturnAll {
		b.WriteString(" RETURNING *")
	}
	b.WriteString(";")
	return b.String()
}

func compileSelect(s *queryir.Select) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Star {
		b.WriteString("*")
	} else {
		for i, item := range s.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(compileExpr(item.Expr))
			if item.Alias != "" {
				b.WriteString(" AS ")
				b.WriteString(QuoteIdent(item.Alias))
			}
		}
	}
	if s.From != "" {
		b.WriteString(" FROM ")
		b.WriteString(QuoteIdent(s.From))
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(compileExpr(s.Where))
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(compileExpr(o.Expr))
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if s.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(compileExpr(s.Limit))
		if s.Offset != nil {
			b.WriteString(" OFFSET ")
			b.WriteString(compileExpr(s.Offset))
		}
	}
	b.WriteString(";")
	return b.String()
}

func compileUpdate(s *queryir.Update) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(QuoteIdent(s.Table))
	b.WriteString(" SET ")
	for i, a := range s.Set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(a.Column))
		b.WriteString(" = ")
		b.WriteString(compileExpr(a.Value))
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(compileExpr(s.Where))
	}
	if s.ReturnAll {
		b.WriteString(" RETURNING *")
	}
	b.WriteString(";")
	return b.String()
}

func compileDelete(s *queryir.Delete) string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(QuoteIdent(s.Table))
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(compileExpr(s.Where))
	}
	if s.ReturnAll {
		b.WriteString(" RETURNING *")
	}
	b.WriteString(";")
	return b.String()
}

// compileAlter emits one statement per action. A RENAME TO changes the
// table name seen by the actions after it.
func compileAlter(s *queryir.AlterTable) ([]string, error) {
	table := s.Table
	out := make([]string, 0, len(s.Actions))
	for _, action := range s.Actions {
		prefix := "ALTER TABLE " + QuoteIdent(table) + " "
		switch a := action.(type) {
		case *queryir.AddColumn:
			out = append(out, prefix+"ADD COLUMN "+compileColumnDef(a.Column)+";")
		case *queryir.DropColumn:
			out = append(out, prefix+"DROP COLUMN "+QuoteIdent(a.Name)+";")
		case *queryir.RenameColumn:
			out = append(out, prefix+"RENAME COLUMN "+QuoteIdent(a.From)+" TO "+QuoteIdent(a.To)+";")
		case *queryir.RenameTable:
			out = append(out, prefix+"RENAME TO "+QuoteIdent(a.To)+";")
			table = a.To
		default:
			return nil, fmt.Errorf("unsupported alter action: %T", action)
		}
	}
	return out, nil
}

func compileDrop(s *queryir.DropTable) string {
	if s.IfExists {
		return "DROP TABLE IF EXISTS " + QuoteIdent(s.Table) + ";"
	}
	return "DROP TABLE " + QuoteIdent(s.Table) + ";"
}

func compileExprList(es []queryir.Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = compileExpr(e)
	}
	return strings.Join(parts, ", ")
}

func compileExpr(e queryir.Expr) string {
	switch x := e.(type) {
	case *queryir.Literal:
		return compileLiteral(x)
	case *queryir.ColumnRef:
		if x.Table != "" {
			return QuoteIdent(x.Table) + "." + QuoteIdent(x.Name)
		}
		return QuoteIdent(x.Name)
	case *queryir.Binary:
		return compileExpr(x.Left) + " " + x.Op + " " + compileExpr(x.Right)
	case *queryir.Unary:
		if x.Op == "NOT" {
			return "NOT " + compileExpr(x.Operand)
		}
		return x.Op + compileExpr(x.Operand)
	case *queryir.IsNull:
		if x.Not {
			return compileExpr(x.Operand) + " IS NOT NULL"
		}
		return compileExpr(x.Operand) + " IS NULL"
	case *queryir.FuncCall:
		if x.Star {
			return x.Name + "(*)"
		}
		return x.Name + "(" + compileExprList(x.Args) + ")"
	case *queryir.Paren:
		return "(" + compileExpr(x.Inner) + ")"
	default:
		return "NULL"
	}
}

// compileLiteral renders a literal. Tagged literals are written as the
// value they were tagged with: addresses in lowercase canonical form,
// booleans as 1 or 0, blobs as X'..', so the mirror stores what the chain
// decodes.
func compileLiteral(l *queryir.Literal) string {
	switch l.Kind {
	case queryir.LitNull:
		return "NULL"
	case queryir.LitBool:
		if strings.EqualFold(l.Text, "true") {
			return "1"
		}
		return "0"
	}
	if l.Tagged {
		switch v := l.Value.(type) {
		case ir.IRAddress:
			return QuoteString(string(v))
		case ir.IRBool:
			if v {
				return "1"
			}
			return "0"
		case ir.IRBlob:
			return "X'" + hex.EncodeToString(v) + "'"
		case ir.IRString:
			return QuoteString(l.Text)
		case ir.IRInt:
			if l.Kind == queryir.LitString {
				return strconv.FormatInt(int64(v), 10)
			}
		case ir.IRFloat:
			if l.Kind == queryir.LitString {
				return strconv.FormatFloat(float64(v), 'g', -1, 64)
			}
		}
	}
	if l.Kind == queryir.LitString {
		return QuoteString(l.Text)
	}
	return l.Text
}

// QuoteIdent double-quotes an identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString single-quotes a string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = QuoteIdent(n)
	}
	return strings.Join(parts, ", ")
}

// Cleanup removes double quotes around plain identifiers. Quotes stay on
// reserved words, hex-like text, and names with characters outside
// [A-Za-z0-9_]. Single-quoted literals are copied unchanged.
func Cleanup(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		switch sql[i] {
		case '\'':
			end := scanQuoted(sql, i, '\'')
			b.WriteString(sql[i:end])
			i = end
		case '"':
			end := scanQuoted(sql, i, '"')
			raw := sql[i:end]
			if len(raw) >= 2 && raw[len(raw)-1] == '"' {
				if name := strings.ReplaceAll(raw[1:len(raw)-1], `""`, `"`); needsNoQuotes(name) {
					raw = name
				}
			}
			b.WriteString(raw)
			i = end
		default:
			b.WriteByte(sql[i])
			i++
		}
	}
	return b.String()
}

// scanQuoted returns the index just past the quoted run starting at
// start. Doubled quotes are escapes. Unterminated runs extend to the end.
func scanQuoted(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func needsNoQuotes(name string) bool {
	if name == "" || isHexLike(name) || sqlparse.IsReserved(name) {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isHexLike(s string) bool {
	if len(s) < 2 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
