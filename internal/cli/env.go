package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/engine"
	"github.com/roach88/seiql/internal/registry"
	"github.com/roach88/seiql/internal/store"
)

// env is the runtime every state-touching command shares: the development
// chain loaded from its state file, the registry and the mirror factory.
type env struct {
	opts     *RootOptions
	chain    *chain.Memory
	registry registry.Resolver
	mirrors  *store.Factory
}

func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg := opts.Config

	mem := chain.NewMemory()
	if cfg.Chain.StateFile != "" {
		if err := ensureParent(cfg.Chain.StateFile); err != nil {
			return nil, err
		}
		loaded, err := chain.LoadMemory(cfg.Chain.StateFile)
		if err != nil {
			return nil, err
		}
		mem = loaded
	}

	if cfg.Registry.Driver != "postgres" {
		if err := ensureParent(cfg.Registry.Path); err != nil {
			return nil, err
		}
	}
	reg, err := registry.Open(ctx, cfg.Registry.Driver, cfg.Registry.Path, cfg.Registry.DSN)
	if err != nil {
		return nil, err
	}

	mirrors, err := store.NewFactory(cfg.MirrorDir)
	if err != nil {
		reg.Close()
		return nil, err
	}

	opts.Logger.Debug("environment ready",
		"mirror_dir", cfg.MirrorDir,
		"registry", cfg.Registry.Driver,
		"chain_state", cfg.Chain.StateFile)
	return &env{opts: opts, chain: mem, registry: reg, mirrors: mirrors}, nil
}

func (e *env) coordinator() *engine.Coordinator {
	return engine.New(e.registry, e.chain, engine.StoreMirrors(e.mirrors),
		engine.WithLogger(e.opts.Logger),
		engine.WithChainTimeout(e.opts.Config.Chain.Timeout),
	)
}

// save persists the chain state. The mirror is already on disk.
func (e *env) save() error {
	if e.opts.Config.Chain.StateFile == "" {
		return nil
	}
	if err := e.chain.Save(e.opts.Config.Chain.StateFile); err != nil {
		return fmt.Errorf("save chain state: %w", err)
	}
	return nil
}

func (e *env) close() {
	if err := e.registry.Close(); err != nil {
		e.opts.Logger.Error("error closing registry", "error", err)
	}
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
