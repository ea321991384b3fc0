package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
)

// readError classifies a failed view call made while preparing a
// statement. Contract lookups that miss map to their not-found codes.
func readError(err error, format string, args ...any) error {
	if _, ok := ir.CodeOf(err); ok {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, chain.ErrTableNotFound):
		return ir.WrapError(ir.CodeTableNotFound, err, "%s", msg)
	case errors.Is(err, chain.ErrColumnNotFound):
		return ir.WrapError(ir.CodeColumnNotFound, err, "%s", msg)
	case errors.Is(err, chain.ErrDatabaseNotFound):
		return ir.WrapError(ir.CodeResolution, err, "%s", msg)
	default:
		return ir.WrapError(ir.CodeChainCall, err, "%s", msg)
	}
}

// callError wraps a failed state-changing call. Every such failure is
// CHAIN_CALL_ERROR regardless of the revert reason.
func callError(err error, table, format string, args ...any) error {
	return ir.WrapError(ir.CodeChainCall, err, format, args...).WithTable(table)
}

// withTable fills in the table context of a structured error that has none.
func withTable(err error, table string) error {
	var e *ir.Error
	if errors.As(err, &e) && e.Table == "" {
		e.Table = table
	}
	return err
}

// newUnscopedError rejects an UPDATE or DELETE with no WHERE clause.
func newUnscopedError(kind queryir.StatementKind, table string) *ir.Error {
	return ir.Errorf(ir.CodeUnscopedMutation, "%s without WHERE would touch every row", kind).WithTable(table)
}

// IsUnscopedError reports whether err rejected an unscoped mutation.
func IsUnscopedError(err error) bool {
	return ir.IsCode(err, ir.CodeUnscopedMutation)
}

// IsDivergence reports whether err means mirror and chain disagree.
func IsDivergence(err error) bool {
	var e *ir.Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == ir.CodeMirrorDiverged {
			return true
		}
		err = e.Err
	}
	return false
}
