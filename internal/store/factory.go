package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/seiql/internal/ir"
)

// Factory opens mirror stores, one file per database address.
type Factory struct {
	Dir string
}

// NewFactory creates dir if needed and returns a Factory rooted there.
func NewFactory(dir string) (*Factory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	return &Factory{Dir: dir}, nil
}

// PathFor returns the mirror file path for addr.
func (f *Factory) PathFor(addr ir.Address) string {
	return filepath.Join(f.Dir, addr.Hex()+".db")
}

// Open opens the mirror bound to addr. The caller closes it.
func (f *Factory) Open(_ context.Context, addr ir.Address) (*Store, error) {
	s, err := Open(f.PathFor(addr))
	if err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "open mirror for %s", addr.Hex())
	}
	return s, nil
}
