package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seiql/internal/augment"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
	"github.com/roach88/seiql/internal/sqlparse"
)

// whereExpr parses cond as the WHERE clause of a SELECT and tags its
// literals.
func whereExpr(t *testing.T, cond string) queryir.Expr {
	t.Helper()
	stmt, err := sqlparse.Parse("SELECT * FROM t WHERE " + cond)
	require.NoError(t, err)
	for _, lit := range queryir.Literals(stmt) {
		require.NoError(t, augment.TagLiteral(lit))
	}
	sel, ok := stmt.(*queryir.Select)
	require.True(t, ok)
	return sel.Where
}

func testRow() *rowEnv {
	return &rowEnv{
		table: "t",
		values: map[string]ir.IRValue{
			"a": ir.IRInt(3),
			"f": ir.IRFloat(2.5),
			"s": ir.IRString("Hello"),
			"n": ir.IRNull{},
			"b": ir.IRBool(true),
			"w": ir.IRAddress("0xc37cb62c6ad31842d8ba5c748f972d63c3f60569"),
		},
	}
}

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		name string
		cond string
		want ir.IRValue
	}{
		{"int equality", "a = 3", ir.IRBool(true)},
		{"int equals float", "a = 3.0", ir.IRBool(true)},
		{"float against int", "f > a", ir.IRBool(false)},
		{"numeric text", "a = '3'", ir.IRBool(true)},
		{"not equal", "a <> 4", ir.IRBool(true)},
		{"null comparison", "n = 1", ir.IRNull{}},
		{"is null", "n IS NULL", ir.IRBool(true)},
		{"is not null", "a IS NOT NULL", ir.IRBool(true)},
		{"not null", "NOT n = 1", ir.IRNull{}},
		{"null or true", "n = 1 OR a = 3", ir.IRBool(true)},
		{"null and true", "n = 1 AND a = 3", ir.IRNull{}},
		{"null and false", "n = 1 AND a = 4", ir.IRBool(false)},
		{"addition", "a + 1", ir.IRInt(4)},
		{"integer division truncates", "a / 2", ir.IRInt(1)},
		{"float product", "f * 2", ir.IRFloat(5)},
		{"division by zero", "a / 0", ir.IRNull{}},
		{"modulo", "7 % 3", ir.IRInt(1)},
		{"float division", "f / 2", ir.IRFloat(1.25)},
		{"integer over float", "a / 2.0", ir.IRFloat(1.5)},
		{"float division by zero", "f / 0", ir.IRNull{}},
		{"float sum in binary", "0.1 + 0.2", ir.IRFloat(0.30000000000000004)},
		{"float modulo truncates", "7.5 % 2", ir.IRFloat(1)},
		{"sum overflow becomes float", "9223372036854775807 + 1", ir.IRFloat(9223372036854775808.0)},
		{"product overflow becomes float", "9223372036854775807 * 2", ir.IRFloat(18446744073709551614.0)},
		{"in range stays integer", "9223372036854775806 + 1", ir.IRInt(9223372036854775807)},
		{"negation", "-a", ir.IRInt(-3)},
		{"concat", "s || '!'", ir.IRString("Hello!")},
		{"lower", "lower(s)", ir.IRString("hello")},
		{"upper", "upper(s) = 'HELLO'", ir.IRBool(true)},
		{"length", "length(s)", ir.IRInt(5)},
		{"abs", "abs(-a)", ir.IRInt(3)},
		{"abs of null", "abs(n)", ir.IRNull{}},
		{"bool literal", "b = true", ir.IRBool(true)},
		{"bool as integer", "b = 1", ir.IRBool(true)},
		{"address any case", "w = '0xC37CB62C6AD31842D8BA5C748F972D63C3F60569'", ir.IRBool(true)},
		{"text orders after numbers", "s > 100", ir.IRBool(true)},
		{"parenthesized", "(a + 1) * 2 = 8", ir.IRBool(true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalExpr(whereExpr(t, tt.cond), testRow())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalExprErrors(t *testing.T) {
	tests := []struct {
		name string
		cond string
		code ir.ErrorCode
	}{
		{"unknown column", "missing = 1", ir.CodeColumnNotFound},
		{"wrong qualifier", "other.a = 1", ir.CodeColumnNotFound},
		{"aggregate", "count(*) = 1", ir.CodeValidation},
		{"unknown function", "hex(s) = 'x'", ir.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalExpr(whereExpr(t, tt.cond), testRow())
			require.Error(t, err)
			assert.True(t, ir.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestEvalExprWithoutRow(t *testing.T) {
	got, err := evalExpr(whereExpr(t, "1 + 2 * 3"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(7), got)

	_, err = evalExpr(whereExpr(t, "a + 1"), nil)
	assert.True(t, ir.IsCode(err, ir.CodeValidation))
}

func TestTruth(t *testing.T) {
	tests := []struct {
		in          ir.IRValue
		value, know bool
	}{
		{ir.IRNull{}, false, false},
		{ir.IRBool(true), true, true},
		{ir.IRInt(0), false, true},
		{ir.IRFloat(0.5), true, true},
		{ir.IRString("abc"), false, true},
		{ir.IRString("2"), true, true},
	}
	for _, tt := range tests {
		v, k := truth(tt.in)
		assert.Equal(t, tt.value, v, "%#v", tt.in)
		assert.Equal(t, tt.know, k, "%#v", tt.in)
	}
}
