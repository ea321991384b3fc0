package augment

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// TypeLookup is implemented by schema lookups that also know the domain
// type of each column, keyed by lower-case column name.
type TypeLookup interface {
	ColumnTypes(ctx context.Context, table string) (map[string]ir.TypeTag, error)
}

// coerceLiterals retypes literals by the column they are written to or
// compared with: INSERT values, SET values, column-literal comparisons,
// and column DEFAULTs. Mirror SQL and typed tree then carry the value the
// chain encodes for that column. Literals without a known column keep
// their lexical tag.
func (a *Augmenter) coerceLiterals(ctx context.Context, stmt queryir.Statement, lookup SchemaLookup) {
	for _, col := range queryir.ColumnDefs(stmt) {
		lit, ok := col.Default.(*queryir.Literal)
		if !ok {
			continue
		}
		if tag, err := col.Tag(); err == nil {
			coerceLiteral(lit, tag)
		}
	}

	table := queryir.StatementTable(stmt)
	tl, ok := lookup.(TypeLookup)
	if !ok || table == "" {
		return
	}
	switch stmt.(type) {
	case *queryir.Insert, *queryir.Update, *queryir.Delete, *queryir.Select:
	default:
		return
	}
	types, err := tl.ColumnTypes(ctx, table)
	if err != nil {
		a.logger.Debug("column types unavailable, keeping lexical literal tags", "table", table, "error", err)
		return
	}

	byName := func(name string) (ir.TypeTag, bool) {
		tag, ok := types[strings.ToLower(name)]
		return tag, ok
	}

	switch st := stmt.(type) {
	case *queryir.Insert:
		for _, row := range st.Rows {
			for i, e := range row {
				if i >= len(st.Columns) {
					break
				}
				if lit, ok := e.(*queryir.Literal); ok {
					if tag, ok := byName(st.Columns[i]); ok {
						coerceLiteral(lit, tag)
					}
				}
			}
		}
	case *queryir.Update:
		for _, as := range st.Set {
			if lit, ok := as.Value.(*queryir.Literal); ok {
				if tag, ok := byName(as.Column); ok {
					coerceLiteral(lit, tag)
				}
			}
		}
		coerceComparisons(st.Where, byName)
	case *queryir.Delete:
		coerceComparisons(st.Where, byName)
	case *queryir.Select:
		coerceComparisons(st.Where, byName)
	}
}

// coerceComparisons retypes the literal side of every column-literal
// comparison in e.
func coerceComparisons(e queryir.Expr, byName func(string) (ir.TypeTag, bool)) {
	queryir.WalkExpr(e, func(n queryir.Expr) bool {
		b, ok := n.(*queryir.Binary)
		if !ok || !isComparison(b.Op) {
			return true
		}
		col, lit := columnAndLiteral(b.Left, b.Right)
		if col == nil {
			col, lit = columnAndLiteral(b.Right, b.Left)
		}
		if col != nil {
			if tag, ok := byName(col.Name); ok {
				coerceLiteral(lit, tag)
			}
		}
		return true
	})
}

func columnAndLiteral(l, r queryir.Expr) (*queryir.ColumnRef, *queryir.Literal) {
	col, ok := l.(*queryir.ColumnRef)
	if !ok {
		return nil, nil
	}
	lit, ok := r.(*queryir.Literal)
	if !ok {
		return nil, nil
	}
	return col, lit
}

func isComparison(op string) bool {
	switch op {
	case "=", "==", "!=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// coerceLiteral sets the tag and value l takes in a column of type tag.
// Values the column cannot hold keep their lexical tag so the codec can
// reject them.
func coerceLiteral(l *queryir.Literal, tag ir.TypeTag) {
	switch l.Kind {
	case queryir.LitString:
		switch tag {
		case ir.TagText:
			l.Tag, l.Value = ir.TagText, ir.IRString(l.Text)
		case ir.TagAddress:
			if ir.IsAddress(l.Text) {
				l.Tag, l.Value = ir.TagAddress, ir.IRAddress(strings.ToLower(l.Text))
			}
		case ir.TagBool:
			if b, ok := boolToken(l.Text); ok {
				l.Tag, l.Value = ir.TagBool, ir.IRBool(b)
			}
		case ir.TagInteger:
			if n, err := strconv.ParseInt(l.Text, 10, 64); err == nil {
				l.Tag, l.Value = ir.TagInteger, ir.IRInt(n)
			}
		case ir.TagFloat:
			if f, err := strconv.ParseFloat(l.Text, 64); err == nil {
				l.Tag, l.Value = ir.TagFloat, ir.IRFloat(f)
			}
		case ir.TagBlob:
			if b, ok := blobBytes(l.Text); ok {
				l.Tag, l.Value = ir.TagBlob, ir.IRBlob(b)
			}
		}
	case queryir.LitNumber:
		if tag == ir.TagText {
			l.Tag, l.Value = ir.TagText, ir.IRString(l.Text)
		}
	}
}

func boolToken(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// blobBytes decodes a BLOB string literal: 0x-prefixed hex, otherwise the
// UTF-8 bytes.
func blobBytes(s string) ([]byte, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hex.DecodeString(s[2:])
		return b, err == nil
	}
	return []byte(s), true
}
