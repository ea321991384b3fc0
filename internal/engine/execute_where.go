package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// rowEnv holds the decoded values of one chain row, keyed by lower-case
// column name.
type rowEnv struct {
	table  string
	values map[string]ir.IRValue
}

// matchedRow is a chain row selected by a WHERE clause.
type matchedRow struct {
	index uint64
	env   *rowEnv
}

// executeWhere scans every live row of tbl and returns those for which
// where evaluates to true, in row index order.
//
// Returns zero or more rows (an empty slice is valid, not an error).
// Deleted slots are skipped. A nil where matches every live row.
func (c *Coordinator) executeWhere(
	ctx context.Context,
	tbl chain.Table,
	table string,
	schema []ir.ColumnDefinition,
	where queryir.Expr,
) ([]matchedRow, error) {
	count, err := tbl.RowCount(ctx)
	if err != nil {
		return nil, readError(err, "rowCount of %s", table)
	}

	var matches []matchedRow
	for i := uint64(0); i < count; i++ {
		row, err := tbl.ReadRow(ctx, i)
		if errors.Is(err, chain.ErrRowNotFound) {
			continue
		}
		if err != nil {
			return nil, readError(err, "readRow(%d) of %s", i, table)
		}

		env, err := c.decodeRow(table, schema, row)
		if err != nil {
			return nil, err
		}
		if where != nil {
			v, err := evalExpr(where, env)
			if err != nil {
				return nil, withTable(err, table)
			}
			if ok, known := truth(v); !ok || !known {
				continue
			}
		}
		matches = append(matches, matchedRow{index: i, env: env})
	}
	return matches, nil
}

// decodeRow decodes the cells of row against schema. Columns without a
// cell read as NULL.
func (c *Coordinator) decodeRow(table string, schema []ir.ColumnDefinition, row ir.Row) (*rowEnv, error) {
	env := &rowEnv{table: table, values: make(map[string]ir.IRValue, len(schema))}
	for _, col := range schema {
		data, ok := row.Cell(col.Index)
		if !ok {
			env.values[strings.ToLower(col.Name)] = ir.IRNull{}
			continue
		}
		v, err := c.codec.Decode(data, col.Tag)
		if err != nil {
			return nil, ir.WrapError(ir.CodeMirrorDiverged, err, "row %d holds undecodable %s", row.Index, col.Tag).
				WithTable(table).WithColumn(col.Name)
		}
		env.values[strings.ToLower(col.Name)] = v
	}
	return env, nil
}

// evalExpr evaluates e with SQL NULL semantics. A nil env evaluates
// constant expressions only.
func evalExpr(e queryir.Expr, env *rowEnv) (ir.IRValue, error) {
	switch x := e.(type) {
	case *queryir.Literal:
		if !x.Tagged || x.Value == nil {
			return nil, ir.Errorf(ir.CodeParse, "untyped literal %q", x.Text)
		}
		return x.Value, nil

	case *queryir.ColumnRef:
		if env == nil {
			return nil, ir.Errorf(ir.CodeValidation, "column %s is not allowed in a constant expression", x.Name).WithColumn(x.Name)
		}
		if x.Table != "" && !strings.EqualFold(x.Table, env.table) {
			return nil, ir.Errorf(ir.CodeColumnNotFound, "unknown table qualifier %s", x.Table).WithColumn(x.Name)
		}
		v, ok := env.values[strings.ToLower(x.Name)]
		if !ok {
			return nil, ir.Errorf(ir.CodeColumnNotFound, "no such column: %s", x.Name).WithColumn(x.Name)
		}
		return v, nil

	case *queryir.Paren:
		return evalExpr(x.Inner, env)

	case *queryir.IsNull:
		v, err := evalExpr(x.Operand, env)
		if err != nil {
			return nil, err
		}
		return ir.IRBool(ir.IsNull(v) != x.Not), nil

	case *queryir.Unary:
		v, err := evalExpr(x.Operand, env)
		if err != nil {
			return nil, err
		}
		return evalUnary(x.Op, v)

	case *queryir.Binary:
		l, err := evalExpr(x.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := evalExpr(x.Right, env)
		if err != nil {
			return nil, err
		}
		return evalBinary(x.Op, l, r)

	case *queryir.FuncCall:
		return evalFunc(x, env)

	default:
		return nil, ir.Errorf(ir.CodeParse, "unsupported expression %T", e)
	}
}

func evalUnary(op string, v ir.IRValue) (ir.IRValue, error) {
	if ir.IsNull(v) {
		return ir.IRNull{}, nil
	}
	switch strings.ToUpper(op) {
	case "NOT":
		b, _ := truth(v)
		return ir.IRBool(!b), nil
	case "-":
		d, isInt := toNumber(v)
		return fromNumber(d.Neg(), isInt), nil
	case "+":
		return v, nil
	default:
		return nil, ir.Errorf(ir.CodeParse, "unsupported operator %s", op)
	}
}

func evalBinary(op string, l, r ir.IRValue) (ir.IRValue, error) {
	switch op {
	case "AND":
		lb, lk := truth(l)
		rb, rk := truth(r)
		switch {
		case (lk && !lb) || (rk && !rb):
			return ir.IRBool(false), nil
		case !lk || !rk:
			return ir.IRNull{}, nil
		default:
			return ir.IRBool(true), nil
		}
	case "OR":
		lb, lk := truth(l)
		rb, rk := truth(r)
		switch {
		case (lk && lb) || (rk && rb):
			return ir.IRBool(true), nil
		case !lk || !rk:
			return ir.IRNull{}, nil
		default:
			return ir.IRBool(false), nil
		}
	}

	if ir.IsNull(l) || ir.IsNull(r) {
		return ir.IRNull{}, nil
	}

	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		c := compareValues(l, r)
		var ok bool
		switch op {
		case "=":
			ok = c == 0
		case "!=":
			ok = c != 0
		case "<":
			ok = c < 0
		case "<=":
			ok = c <= 0
		case ">":
			ok = c > 0
		case ">=":
			ok = c >= 0
		}
		return ir.IRBool(ok), nil
	case "||":
		return ir.IRString(textOf(l) + textOf(r)), nil
	case "+", "-", "*", "/", "%":
		return arith(op, l, r), nil
	default:
		return nil, ir.Errorf(ir.CodeParse, "unsupported operator %s", op)
	}
}

// arith applies an arithmetic operator the way the mirror does. Integer
// operands use exact integer arithmetic and become FLOAT when the result
// leaves the int64 range. Any FLOAT operand switches to float64
// arithmetic. Division or modulo by zero yields NULL.
func arith(op string, l, r ir.IRValue) ir.IRValue {
	ld, lInt := toNumber(l)
	rd, rInt := toNumber(r)
	if !lInt || !rInt {
		return floatArith(op, floatOf(l, ld), floatOf(r, rd))
	}

	switch op {
	case "+":
		return fromNumber(ld.Add(rd), true)
	case "-":
		return fromNumber(ld.Sub(rd), true)
	case "*":
		return fromNumber(ld.Mul(rd), true)
	case "/":
		if rd.IsZero() {
			return ir.IRNull{}
		}
		q, _ := ld.QuoRem(rd, 0)
		return fromNumber(q, true)
	default: // %
		if rd.IsZero() {
			return ir.IRNull{}
		}
		return fromNumber(ld.Mod(rd), true)
	}
}

func floatArith(op string, l, r float64) ir.IRValue {
	switch op {
	case "+":
		return ir.IRFloat(l + r)
	case "-":
		return ir.IRFloat(l - r)
	case "*":
		return ir.IRFloat(l * r)
	case "/":
		if r == 0 {
			return ir.IRNull{}
		}
		return ir.IRFloat(l / r)
	default: // %
		li, ri := math.Trunc(l), math.Trunc(r)
		if ri == 0 {
			return ir.IRNull{}
		}
		return ir.IRFloat(math.Mod(li, ri))
	}
}

// floatOf returns the float64 operand for v, keeping FLOAT values
// bit-exact.
func floatOf(v ir.IRValue, d decimal.Decimal) float64 {
	if f, ok := v.(ir.IRFloat); ok {
		return float64(f)
	}
	f, _ := d.Float64()
	return f
}

func evalFunc(f *queryir.FuncCall, env *rowEnv) (ir.IRValue, error) {
	name := strings.ToLower(f.Name)
	if f.Star || len(f.Args) != 1 {
		return nil, ir.Errorf(ir.CodeValidation, "%s() is not supported in chain predicates", f.Name)
	}
	v, err := evalExpr(f.Args[0], env)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) {
		switch name {
		case "lower", "upper", "length", "abs":
			return ir.IRNull{}, nil
		}
	}

	switch name {
	case "lower":
		return ir.IRString(strings.ToLower(textOf(v))), nil
	case "upper":
		return ir.IRString(strings.ToUpper(textOf(v))), nil
	case "length":
		if b, ok := v.(ir.IRBlob); ok {
			return ir.IRInt(len(b)), nil
		}
		return ir.IRInt(utf8.RuneCountInString(textOf(v))), nil
	case "abs":
		d, isInt := toNumber(v)
		return fromNumber(d.Abs(), isInt), nil
	default:
		return nil, ir.Errorf(ir.CodeValidation, "%s() is not supported in chain predicates", f.Name)
	}
}

// truth converts v to a boolean. known is false for NULL.
func truth(v ir.IRValue) (value, known bool) {
	if ir.IsNull(v) {
		return false, false
	}
	if b, ok := v.(ir.IRBool); ok {
		return bool(b), true
	}
	d, _ := toNumber(v)
	return !d.IsZero(), true
}

// numeric reports whether v is a number and returns its exact value.
func numeric(v ir.IRValue) (d decimal.Decimal, isInt, ok bool) {
	switch x := v.(type) {
	case ir.IRInt:
		return decimal.NewFromInt(int64(x)), true, true
	case ir.IRFloat:
		return decimal.NewFromFloat(float64(x)), false, true
	case ir.IRBool:
		if x {
			return decimal.NewFromInt(1), true, true
		}
		return decimal.Zero, true, true
	case ir.IRString:
		s := strings.TrimSpace(string(x))
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, false
		}
		return d, !strings.ContainsAny(s, ".eE"), true
	default:
		return decimal.Zero, false, false
	}
}

// toNumber converts v for arithmetic. Non-numeric values count as 0.
func toNumber(v ir.IRValue) (decimal.Decimal, bool) {
	d, isInt, ok := numeric(v)
	if !ok {
		return decimal.Zero, true
	}
	return d, isInt
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// fromNumber converts an arithmetic result back to a value. Integer
// results outside the int64 range become FLOAT.
func fromNumber(d decimal.Decimal, isInt bool) ir.IRValue {
	if isInt && d.Cmp(maxInt64) <= 0 && d.Cmp(minInt64) >= 0 {
		return ir.IRInt(d.IntPart())
	}
	f, _ := d.Float64()
	return ir.IRFloat(f)
}

// storageClass orders values of different kinds: numbers, then text,
// then blobs.
func storageClass(v ir.IRValue) int {
	switch v.(type) {
	case ir.IRInt, ir.IRFloat, ir.IRBool:
		return 1
	case ir.IRString, ir.IRAddress:
		return 2
	default:
		return 3
	}
}

// compareValues orders two non-NULL values. Numbers compare exactly across
// integer and float; a numeric string compares as a number against a
// number.
func compareValues(l, r ir.IRValue) int {
	lc, rc := storageClass(l), storageClass(r)
	if lc == 1 || rc == 1 {
		ld, _, lok := numeric(l)
		rd, _, rok := numeric(r)
		if lok && rok {
			return ld.Cmp(rd)
		}
	}
	if lc != rc {
		return lc - rc
	}
	if lc == 3 {
		lb, _ := l.(ir.IRBlob)
		rb, _ := r.(ir.IRBlob)
		return bytes.Compare(lb, rb)
	}
	return strings.Compare(textOf(l), textOf(r))
}

// textOf renders v the way the mirror stores it as text.
func textOf(v ir.IRValue) string {
	switch x := v.(type) {
	case ir.IRString:
		return string(x)
	case ir.IRAddress:
		return string(x)
	case ir.IRInt:
		return strconv.FormatInt(int64(x), 10)
	case ir.IRFloat:
		if math.Trunc(float64(x)) == float64(x) && !math.IsInf(float64(x), 0) {
			return strconv.FormatFloat(float64(x), 'f', 1, 64)
		}
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case ir.IRBool:
		if x {
			return "1"
		}
		return "0"
	case ir.IRBlob:
		return string(x)
	default:
		return ""
	}
}
