package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/seiql/internal/ir"
)

// Save writes the chain state to path as JSON. The call log and pending
// faults are not saved.
func (m *Memory) Save(path string) error {
	m.mu.Lock()
	data, err := json.MarshalIndent(m.state, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode chain state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chain-*.json")
	if err != nil {
		return fmt.Errorf("create chain state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chain state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chain state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace chain state: %w", err)
	}
	return nil
}

// LoadMemory reads a chain saved with Save. A missing file yields an
// empty chain.
func LoadMemory(path string) (*Memory, error) {
	m := NewMemory()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain state: %w", err)
	}

	var st memState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode chain state %s: %w", path, err)
	}
	if st.Databases == nil {
		st.Databases = make(map[ir.Address]*memDatabase)
	}
	if st.Tables == nil {
		st.Tables = make(map[ir.Address]*memTable)
	}
	m.state = st
	return m, nil
}
