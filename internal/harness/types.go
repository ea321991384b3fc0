package harness

import (
	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/queryir"
)

// TraceEvent records one step: the statement, its outcome, and the chain
// calls it made.
type TraceEvent struct {
	Step       int                   `json:"step"`
	SQL        string                `json:"sql"`
	Kind       queryir.StatementKind `json:"kind,omitempty"`
	Error      string                `json:"error,omitempty"`
	Calls      []chain.Call          `json:"calls"`
	RowIndexes []uint64              `json:"row_indexes,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
