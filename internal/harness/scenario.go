package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/ir"
)

// DefaultOwner owns the scenario database when a scenario names none.
const DefaultOwner = "0x00000000000000000000000000000000000000a1"

// DefaultDatabase is the logical database name used when a scenario names none.
const DefaultDatabase = "scenario"

// Scenario is a sequence of SQL statements run through the coordinator
// against a fresh development chain and mirror.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Owner and Database identify the logical database the steps run against.
	Owner    string `yaml:"owner,omitempty"`
	Database string `yaml:"database,omitempty"`

	// Steps run in order. A failing step does not stop the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions check the chain and mirror after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one Execute call.
type Step struct {
	SQL string `yaml:"sql"`

	// FailOn makes the named chain operation fail once during this step.
	FailOn string `yaml:"fail_on,omitempty"`

	// Expect checks the step outcome. A nil Expect requires success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. VALIDATION_ERROR.
	Error string `yaml:"error,omitempty"`

	Columns    []string `yaml:"columns,omitempty"`
	Rows       [][]any  `yaml:"rows,omitempty"`
	RowIndexes []uint64 `yaml:"row_indexes,omitempty"`
}

// Assertion checks final chain or mirror state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Ops is the exact sequence of chain operations (chain_calls).
	Ops []string `yaml:"ops,omitempty"`

	// Op and Count check how often one operation ran (chain_count).
	Op    string `yaml:"op,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// Table names the table for chain_rows and mirror_rows.
	Table string `yaml:"table,omitempty"`

	// SQL is run against the mirror and compared with Rows (mirror_query).
	SQL  string  `yaml:"sql,omitempty"`
	Rows [][]any `yaml:"rows,omitempty"`
}

// Assertion types.
const (
	AssertChainCalls  = "chain_calls"
	AssertChainCount  = "chain_count"
	AssertChainRows   = "chain_rows"
	AssertMirrorRows  = "mirror_rows"
	AssertMirrorQuery = "mirror_query"
)

var chainOps = map[string]bool{
	chain.OpCreateTable: true, chain.OpDropTable: true, chain.OpRenameTable: true,
	chain.OpAddColumnType: true, chain.OpRemoveActiveColumn: true, chain.OpRenameColumnType: true,
	chain.OpInsertOne: true, chain.OpInsertMany: true, chain.OpUpdateOne: true,
	chain.OpUpdateMany: true, chain.OpDeleteOne: true, chain.OpDeleteMany: true,
}

// LoadScenario reads a scenario YAML file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Owner != "" && !ir.IsAddress(s.Owner) {
		return fmt.Errorf("owner %q is not an address", s.Owner)
	}

	for i, step := range s.Steps {
		if step.SQL == "" {
			return fmt.Errorf("steps[%d]: sql is required", i)
		}
		if step.FailOn != "" && !chainOps[step.FailOn] {
			return fmt.Errorf("steps[%d]: unknown chain operation %q", i, step.FailOn)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertChainCalls:
		for _, op := range a.Ops {
			if !chainOps[op] {
				return fmt.Errorf("unknown chain operation %q", op)
			}
		}
	case AssertChainCount:
		if !chainOps[a.Op] {
			return fmt.Errorf("chain_count requires a known op, got %q", a.Op)
		}
		if a.Count == nil {
			return fmt.Errorf("chain_count requires count")
		}
	case AssertChainRows, AssertMirrorRows:
		if a.Table == "" {
			return fmt.Errorf("%s requires table", a.Type)
		}
		if a.Count == nil {
			return fmt.Errorf("%s requires count", a.Type)
		}
	case AssertMirrorQuery:
		if a.SQL == "" {
			return fmt.Errorf("mirror_query requires sql")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (s *Scenario) owner() ir.Address {
	if s.Owner == "" {
		return ir.MustParseAddress(DefaultOwner)
	}
	return ir.MustParseAddress(s.Owner)
}

func (s *Scenario) database() string {
	if s.Database == "" {
		return DefaultDatabase
	}
	return s.Database
}
