package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/engine"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/registry"
	"github.com/roach88/seiql/internal/store"
)

// Harness holds the per-scenario environment: a fresh development chain,
// a SQLite registry and a mirror directory, all under a temporary dir.
type Harness struct {
	chain   *chain.Memory
	mirrors *store.Factory
	coord   *engine.Coordinator
	addr    ir.Address
	logger  *slog.Logger
	calls   []chain.Call
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the coordinator logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution ids are fixed per step so traces are reproducible. A step
// failing its expectation is recorded in the result and the remaining
// steps still run; only environment failures return an error.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "seiql-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		chain:  chain.NewMemory(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	reg, err := registry.OpenSQLite(filepath.Join(dir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer reg.Close()

	h.mirrors, err = store.NewFactory(filepath.Join(dir, "mirrors"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror dir: %w", err)
	}

	owner := scenario.owner()
	h.addr, err = h.chain.CreateDatabase(ctx, owner, scenario.database())
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := reg.Register(ctx, ir.LogicalDatabase{Owner: owner, Name: scenario.database(), Address: h.addr}); err != nil {
		return nil, fmt.Errorf("failed to register database: %w", err)
	}
	h.chain.ResetCalls()

	ids := make([]string, len(scenario.Steps))
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%03d", scenario.Name, i+1)
	}
	h.coord = engine.New(reg, h.chain, engine.StoreMirrors(h.mirrors),
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(engine.NewFixedGenerator(ids...)),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		h.runStep(ctx, i+1, step, owner, scenario.database(), result)
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, n int, step Step, owner ir.Address, name string, result *Result) {
	if step.FailOn != "" {
		h.chain.FailOn(step.FailOn, fmt.Errorf("injected fault: %s", step.FailOn))
	}

	before := len(h.chain.Calls())
	res, err := h.coord.Execute(ctx, step.SQL, owner, name)
	calls := h.chain.Calls()[before:]
	h.calls = append(h.calls, calls...)

	event := TraceEvent{Step: n, SQL: step.SQL, Calls: calls}
	if res != nil {
		event.Kind = res.Kind
		event.RowIndexes = res.RowIndexes
	}
	if err != nil {
		event.Error = errorCode(err)
	}
	result.Trace = append(result.Trace, event)

	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	switch {
	case err != nil && expect.Error == "":
		result.AddError(fmt.Sprintf("step %d: unexpected error: %v", n, err))
		return
	case err != nil:
		if event.Error != expect.Error {
			result.AddError(fmt.Sprintf("step %d: expected error %s, got %s (%v)", n, expect.Error, event.Error, err))
		}
		return
	case expect.Error != "":
		result.AddError(fmt.Sprintf("step %d: expected error %s, got success", n, expect.Error))
		return
	}

	if expect.Columns != nil && !slices.Equal(expect.Columns, res.Columns) {
		result.AddError(fmt.Sprintf("step %d: expected columns %v, got %v", n, expect.Columns, res.Columns))
	}
	if expect.Rows != nil {
		if msg := compareRows(expect.Rows, res.Rows); msg != "" {
			result.AddError(fmt.Sprintf("step %d: %s", n, msg))
		}
	}
	if expect.RowIndexes != nil && !slices.Equal(expect.RowIndexes, res.RowIndexes) {
		result.AddError(fmt.Sprintf("step %d: expected row indexes %v, got %v", n, expect.RowIndexes, res.RowIndexes))
	}
}

// errorCode names err by its structured code, or UNKNOWN.
func errorCode(err error) string {
	if code, ok := ir.CodeOf(err); ok {
		return string(code)
	}
	return "UNKNOWN"
}
