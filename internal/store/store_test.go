package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seiql/internal/ir"
)

// createTestStore opens a mirror in a temp dir with an accounts table.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Apply(context.Background(), []string{
		"CREATE TABLE accounts (id INTEGER PRIMARY KEY, wallet TEXT, active INTEGER, sei_caret_onchain_index INTEGER);",
	}, false)
	require.NoError(t, err)
	return s
}

// insertPending writes the wallets in one statement, tagging value row i
// with its pending sentinel.
func insertPending(t *testing.T, s *Store, wallets ...string) *Result {
	t.Helper()
	values := make([]string, len(wallets))
	for i, w := range wallets {
		values[i] = fmt.Sprintf("('%s', 1, %d)", w, ir.PendingIndex(i))
	}
	res, err := s.Apply(context.Background(), []string{
		"INSERT INTO accounts (wallet, active, sei_caret_onchain_index) VALUES " + strings.Join(values, ", ") + " RETURNING *;",
	}, true)
	require.NoError(t, err)
	return res
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, s.Path())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err = s.Apply(context.Background(), []string{"SELECT 1;"}, true)
	assert.True(t, ir.IsCode(err, ir.CodeMirror))
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.want))
		})
	}
}

func TestApplyReturning(t *testing.T) {
	s := createTestStore(t)
	res := insertPending(t, s, "0xaa")

	assert.Equal(t, []string{"id", "wallet", "active", "sei_caret_onchain_index"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{int64(1), "0xaa", int64(1), int64(-1)}, res.Rows[0])
}

func TestApplyRejectedStatementRollsBackTransaction(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, []string{
		"ALTER TABLE accounts ADD COLUMN note TEXT;",
		"ALTER TABLE accounts DROP COLUMN missing;",
	}, false)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.CodeMirror))

	cols, err := s.TableColumns(ctx, "accounts")
	require.NoError(t, err)
	assert.NotContains(t, cols, "note")
}

func TestTableColumns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cols, err := s.TableColumns(ctx, "ACCOUNTS")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "wallet", "active", ir.BookkeepingColumn}, cols)

	_, err = s.TableColumns(ctx, "missing")
	assert.True(t, ir.IsCode(err, ir.CodeTableNotFound))

	ok, err := s.HasTable(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackfillRowIndexes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertPending(t, s, "0x01", "0x02")

	pending, err := s.PendingRowIDs(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, pending)

	require.NoError(t, s.BackfillRowIndexes(ctx, "accounts", []uint64{7, 8}))

	idx, err := s.RowIndexes(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, idx)

	pending, err = s.PendingRowIDs(ctx, "accounts")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBackfillCountMismatch(t *testing.T) {
	s := createTestStore(t)
	insertPending(t, s, "0x01")

	err := s.BackfillRowIndexes(context.Background(), "accounts", []uint64{1, 2})
	assert.True(t, ir.IsCode(err, ir.CodeMirrorDiverged))
}

func TestBackfillFollowsStatementOrder(t *testing.T) {
	tests := []struct {
		name   string
		insert string
		want   map[int64]int64 // id -> bookkeeping index
	}{
		{
			name:   "explicit keys descending",
			insert: "INSERT INTO accounts (id, wallet, sei_caret_onchain_index) VALUES (5, '0x05', -1), (2, '0x02', -2);",
			want:   map[int64]int64{5: 10, 2: 11},
		},
		{
			name:   "explicit keys ascending",
			insert: "INSERT INTO accounts (id, wallet, sei_caret_onchain_index) VALUES (2, '0x02', -1), (5, '0x05', -2);",
			want:   map[int64]int64{2: 10, 5: 11},
		},
		{
			name:   "three rows mixed",
			insert: "INSERT INTO accounts (id, wallet, sei_caret_onchain_index) VALUES (9, 'a', -1), (1, 'b', -2), (4, 'c', -3);",
			want:   map[int64]int64{9: 10, 1: 11, 4: 12},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			ctx := context.Background()
			_, err := s.Apply(ctx, []string{tt.insert}, false)
			require.NoError(t, err)

			indices := make([]uint64, len(tt.want))
			for i := range indices {
				indices[i] = uint64(10 + i)
			}
			require.NoError(t, s.BackfillRowIndexes(ctx, "accounts", indices))

			res, err := s.Apply(ctx, []string{"SELECT id, sei_caret_onchain_index FROM accounts;"}, true)
			require.NoError(t, err)
			got := map[int64]int64{}
			for _, row := range res.Rows {
				got[row[0].(int64)] = row[1].(int64)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackfillDuplicateSentinel(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, []string{
		"INSERT INTO accounts (wallet, sei_caret_onchain_index) VALUES ('a', -1), ('b', -1);",
	}, false)
	require.NoError(t, err)

	err = s.BackfillRowIndexes(ctx, "accounts", []uint64{0, 1})
	assert.True(t, ir.IsCode(err, ir.CodeMirrorDiverged))

	idx, err := s.RowIndexes(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, -1}, idx)
}

func TestSnapshotRestore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertPending(t, s, "0x01")

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Data)
	assert.Equal(t, ir.SnapshotChecksum(snap.Data), snap.Checksum)

	insertPending(t, s, "0x02", "0x03")
	_, err = s.Apply(ctx, []string{"ALTER TABLE accounts ADD COLUMN note TEXT;"}, false)
	require.NoError(t, err)

	require.NoError(t, s.Restore(snap))

	n, err := s.RowCount(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cols, err := s.TableColumns(ctx, "accounts")
	require.NoError(t, err)
	assert.NotContains(t, cols, "note")

	// The restored file is what a fresh handle sees.
	reopened, err := Open(s.Path())
	require.NoError(t, err)
	defer reopened.Close()
	n, err = reopened.RowCount(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRestoreIsRepeatable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		insertPending(t, s, "0x01")
		require.NoError(t, s.Restore(snap))
		n, err := s.RowCount(ctx, "accounts")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
}

func TestFactory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mirrors")
	f, err := NewFactory(dir)
	require.NoError(t, err)

	addr := ir.MustParseAddress("0xC37CB62C6AD31842D8BA5C748F972D63C3F60569")
	assert.Equal(t, filepath.Join(dir, "0xc37cb62c6ad31842d8ba5c748f972d63c3f60569.db"), f.PathFor(addr))

	s, err := f.Open(context.Background(), addr)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, f.PathFor(addr), s.Path())
}
