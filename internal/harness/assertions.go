package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/ir"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertChainCalls:
			err = assertChainCalls(h.calls, a)
		case AssertChainCount:
			err = assertChainCount(h.calls, a)
		case AssertChainRows:
			err = h.assertChainRows(ctx, a)
		case AssertMirrorRows:
			err = h.assertMirrorRows(ctx, a)
		case AssertMirrorQuery:
			err = h.assertMirrorQuery(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func assertChainCalls(calls []chain.Call, a Assertion) error {
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	if !slices.Equal(ops, a.Ops) {
		return &AssertionError{
			Type:     AssertChainCalls,
			Expected: fmt.Sprintf("%v", a.Ops),
			Actual:   fmt.Sprintf("%v", ops),
		}
	}
	return nil
}

func assertChainCount(calls []chain.Call, a Assertion) error {
	n := 0
	for _, c := range calls {
		if c.Op == a.Op {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertChainCount,
			Expected: fmt.Sprintf("%d %s calls", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertChainRows counts the live rows of a chain table.
func (h *Harness) assertChainRows(ctx context.Context, a Assertion) error {
	db, err := h.chain.Database(ctx, h.addr)
	if err != nil {
		return err
	}
	names, err := db.TableNames(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(names, func(n string) bool { return strings.EqualFold(n, a.Table) })
	if i < 0 {
		return &AssertionError{Type: AssertChainRows, Expected: "table " + a.Table, Actual: fmt.Sprintf("tables %v", names)}
	}
	addr, err := db.GetTable(ctx, names[i])
	if err != nil {
		return err
	}
	tbl, err := h.chain.Table(ctx, addr)
	if err != nil {
		return err
	}
	total, err := tbl.RowCount(ctx)
	if err != nil {
		return err
	}

	live := 0
	for row := uint64(0); row < total; row++ {
		if _, err := tbl.ReadRow(ctx, row); err != nil {
			if errors.Is(err, chain.ErrRowNotFound) {
				continue
			}
			return err
		}
		live++
	}
	if live != *a.Count {
		return &AssertionError{
			Type:     AssertChainRows,
			Expected: fmt.Sprintf("%d live rows in %s", *a.Count, a.Table),
			Actual:   fmt.Sprintf("%d", live),
		}
	}
	return nil
}

func (h *Harness) assertMirrorRows(ctx context.Context, a Assertion) error {
	s, err := h.mirrors.Open(ctx, h.addr)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.RowCount(ctx, a.Table)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertMirrorRows,
			Expected: fmt.Sprintf("%d mirror rows in %s", *a.Count, a.Table),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertMirrorQuery runs raw SQL against the mirror, bookkeeping column
// included, and compares every row.
func (h *Harness) assertMirrorQuery(ctx context.Context, a Assertion) error {
	s, err := h.mirrors.Open(ctx, h.addr)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.Apply(ctx, []string{a.SQL}, true)
	if err != nil {
		return err
	}
	if msg := compareRows(a.Rows, out.Rows); msg != "" {
		return &AssertionError{Type: AssertMirrorQuery, Expected: a.SQL, Actual: msg}
	}
	return nil
}

// compareRows matches expected scenario values against mirror values.
// Numbers compare numerically; addresses compare case-insensitively.
func compareRows(expected, actual [][]any) string {
	if len(expected) != len(actual) {
		return fmt.Sprintf("expected %d rows, got %d", len(expected), len(actual))
	}
	for i := range expected {
		if len(expected[i]) != len(actual[i]) {
			return fmt.Sprintf("row %d: expected %d values, got %d", i, len(expected[i]), len(actual[i]))
		}
		for j := range expected[i] {
			want, err := ir.FromNative(expected[i][j])
			if err != nil {
				return fmt.Sprintf("row %d value %d: %v", i, j, err)
			}
			got, err := ir.FromNative(actual[i][j])
			if err != nil {
				return fmt.Sprintf("row %d value %d: %v", i, j, err)
			}
			if !ir.Equal(want, got) {
				return fmt.Sprintf("row %d value %d: expected %s, got %s", i, j, ir.Display(want), ir.Display(got))
			}
		}
	}
	return ""
}
