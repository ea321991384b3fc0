package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/seiql/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical. Call
// targets are left out; cell bytes appear as 0x hex.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		calls := make([]any, len(event.Calls))
		for j, c := range event.Calls {
			call := map[string]any{"op": c.Op}
			if c.Args != nil {
				call["args"] = c.Args
			}
			calls[j] = call
		}

		m := map[string]any{
			"step":  event.Step,
			"sql":   event.SQL,
			"calls": calls,
		}
		if event.Kind != "" {
			m["kind"] = string(event.Kind)
		}
		if event.Error != "" {
			m["error"] = event.Error
		}
		if len(event.RowIndexes) > 0 {
			idx := make([]any, len(event.RowIndexes))
			for j, r := range event.RowIndexes {
				idx[j] = r
			}
			m["row_indexes"] = idx
		}
		trace[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// MarshalTrace renders a result trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
