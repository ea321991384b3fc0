package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/querysql"
)

// Snapshot is a full copy of a mirror database file.
type Snapshot struct {
	Data     []byte
	Checksum string
}

// Snapshot captures the whole database with VACUUM INTO and holds the
// result in memory.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.db")
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("prepare snapshot file: %w", err)
	}
	defer os.Remove(name)

	if _, err := db.ExecContext(ctx, "VACUUM INTO "+querysql.QuoteString(name)); err != nil {
		return nil, ir.WrapError(ir.CodeMirror, err, "snapshot mirror %s", s.path)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &Snapshot{Data: data, Checksum: ir.SnapshotChecksum(data)}, nil
}

// Restore closes the database, replaces its file with snap, and reopens
// it. The file is written to a temporary name and renamed into place; WAL
// side files of the replaced database are removed.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return errors.New("restore: nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close mirror before restore: %w", err)
		}
		s.db = nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".restore-*.db")
	if err != nil {
		return fmt.Errorf("create restore file: %w", err)
	}
	if _, err := tmp.Write(snap.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write restore file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync restore file: %w", err)
	}
	tmp.Close()

	for _, side := range []string{s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(side); err != nil && !os.IsNotExist(err) {
			os.Remove(tmp.Name())
			return fmt.Errorf("remove %s: %w", filepath.Base(side), err)
		}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace mirror file: %w", err)
	}

	db, err := openDB(s.path)
	if err != nil {
		return fmt.Errorf("reopen restored mirror: %w", err)
	}
	s.db = db
	return nil
}
