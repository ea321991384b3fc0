package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/codec"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/store"
)

var (
	testOwner  = ir.MustParseAddress("0x00000000000000000000000000000000000000f1")
	testWallet = "0xc37cB62C6Ad31842D8ba5c748f972d63C3f60569"
)

const createAccounts = "CREATE TABLE accounts(id INTEGER PRIMARY KEY, wallet ADDRESS, active BOOL, balance FLOAT)"

// mapResolver resolves names registered for testOwner.
type mapResolver map[string]ir.Address

func (m mapResolver) Resolve(_ context.Context, owner ir.Address, name string) (ir.Address, error) {
	addr, ok := m[name]
	if !ok || owner != testOwner {
		return ir.Address{}, ir.Errorf(ir.CodeResolution, "no database %q", name)
	}
	return addr, nil
}

type testEnv struct {
	coord   *Coordinator
	chain   *chain.Memory
	mirrors *store.Factory
	addr    ir.Address
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	mem := chain.NewMemory()
	addr, err := mem.CreateDatabase(ctx, testOwner, "ledger")
	require.NoError(t, err)

	f, err := store.NewFactory(t.TempDir())
	require.NoError(t, err)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return &testEnv{
		coord:   New(mapResolver{"ledger": addr}, mem, StoreMirrors(f), opts...),
		chain:   mem,
		mirrors: f,
		addr:    addr,
	}
}

func (e *testEnv) exec(query string) (*Result, error) {
	return e.coord.Execute(context.Background(), query, testOwner, "ledger")
}

func (e *testEnv) mustExec(t *testing.T, query string) *Result {
	t.Helper()
	res, err := e.exec(query)
	require.NoError(t, err, query)
	return res
}

// withMirror opens a short-lived handle on the mirror for inspection.
func (e *testEnv) withMirror(t *testing.T, fn func(s *store.Store)) {
	t.Helper()
	s, err := e.mirrors.Open(context.Background(), e.addr)
	require.NoError(t, err)
	defer s.Close()
	fn(s)
}

func (e *testEnv) mirrorCount(t *testing.T, table string) int {
	t.Helper()
	var n int
	e.withMirror(t, func(s *store.Store) {
		var err error
		n, err = s.RowCount(context.Background(), table)
		require.NoError(t, err)
	})
	return n
}

func (e *testEnv) ops() []string {
	var ops []string
	for _, c := range e.chain.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

func (e *testEnv) table(t *testing.T, name string) chain.Table {
	t.Helper()
	ctx := context.Background()
	db, err := e.chain.Database(ctx, e.addr)
	require.NoError(t, err)
	addr, err := db.GetTable(ctx, name)
	require.NoError(t, err)
	tbl, err := e.chain.Table(ctx, addr)
	require.NoError(t, err)
	return tbl
}

func encoded(t *testing.T, v ir.IRValue, tag ir.TypeTag) []byte {
	t.Helper()
	b, err := codec.Encode(v, tag, "test")
	require.NoError(t, err)
	return b
}

func TestExecuteCreateThenInsert(t *testing.T) {
	env := newTestEnv(t)

	res := env.mustExec(t, createAccounts)
	assert.Equal(t, "create", string(res.Kind))

	env.withMirror(t, func(s *store.Store) {
		cols, err := s.TableColumns(context.Background(), "accounts")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "wallet", "active", "balance", ir.BookkeepingColumn}, cols)
	})

	res = env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ("`+testWallet+`", true, 12.5)`)
	assert.Equal(t, []uint64{0}, res.RowIndexes)
	assert.Equal(t, []string{"id", "wallet", "active", "balance"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{int64(1), "0xc37cb62c6ad31842d8ba5c748f972d63c3f60569", int64(1), 12.5}, res.Rows[0])

	assert.Equal(t, []string{chain.OpCreateDatabase, chain.OpCreateTable, chain.OpInsertOne}, env.ops())

	calls := env.chain.Calls()
	assert.Equal(t, []string{"id", "wallet", "active", "balance"}, calls[1].Args["names"])
	assert.Equal(t, []any{uint64(0), uint64(4), uint64(3), uint64(1)}, calls[1].Args["types"])

	insert := calls[2].Args
	assert.Equal(t, []any{uint64(0), uint64(1), uint64(2), uint64(3)}, insert["columns"])
	values := insert["values"].([]any)
	require.Len(t, values, 4)
	assert.Equal(t, encoded(t, ir.IRInt(1), ir.TagInteger), values[0], "mirror-assigned primary key is written")
	assert.Len(t, values[1], 20)
	wallet := ir.MustParseAddress(testWallet)
	assert.Equal(t, wallet[:], values[1])
	assert.Equal(t, []byte{0x01}, values[2])
	assert.Equal(t, encoded(t, ir.IRFloat(12.5), ir.TagFloat), values[3])
	assert.Len(t, values[3], 8)

	env.withMirror(t, func(s *store.Store) {
		idx, err := s.RowIndexes(context.Background(), "accounts")
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, idx, "bookkeeping column holds the committed chain index")
	})
}

func TestExecuteInvalidAddressTouchesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)
	env.chain.ResetCalls()

	_, err := env.exec(`INSERT INTO accounts (wallet, active, balance) VALUES ("invalid_address_123", true, 12.5)`)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.CodeValidation), "got %v", err)
	assert.False(t, ir.Retryable(err))

	assert.Empty(t, env.chain.Calls())
	assert.Equal(t, 0, env.mirrorCount(t, "accounts"))
}

func TestSelectStarHidesBookkeeping(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)
	env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', false, 1)`)
	env.chain.ResetCalls()

	res := env.mustExec(t, "SELECT * FROM accounts WHERE active = false")
	assert.Equal(t, []string{"id", "wallet", "active", "balance"}, res.Columns)
	assert.Len(t, res.Rows, 1)
	assert.Empty(t, env.chain.Calls(), "select never reaches the chain")
}

func TestUnscopedMutationRejected(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"update", "UPDATE accounts SET active = false"},
		{"delete", "DELETE FROM accounts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.mustExec(t, createAccounts)
			env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`)
			env.chain.ResetCalls()

			_, err := env.exec(tt.query)
			assert.True(t, IsUnscopedError(err))
			assert.False(t, ir.Retryable(err))
			assert.Empty(t, env.chain.Calls())
			assert.Equal(t, 1, env.mirrorCount(t, "accounts"))
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustExec(t, createAccounts)

	res := env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES
		('`+testWallet+`', true, 12.5),
		('`+testWallet+`', false, 3),
		('`+testWallet+`', true, -1)`)
	assert.Equal(t, []uint64{0, 1, 2}, res.RowIndexes)
	assert.Contains(t, env.ops(), chain.OpInsertMany)

	env.chain.ResetCalls()
	res = env.mustExec(t, "UPDATE accounts SET balance = balance + 1 WHERE active = true")
	assert.Equal(t, []uint64{0, 2}, res.RowIndexes)
	assert.Equal(t, []string{chain.OpUpdateMany}, env.ops())

	row, err := env.table(t, "accounts").ReadRow(ctx, 0)
	require.NoError(t, err)
	data, ok := row.Cell(3)
	require.True(t, ok)
	assert.Equal(t, encoded(t, ir.IRFloat(13.5), ir.TagFloat), data)

	env.chain.ResetCalls()
	res = env.mustExec(t, "DELETE FROM accounts WHERE id = 2")
	assert.Equal(t, []uint64{1}, res.RowIndexes)
	assert.Equal(t, []string{chain.OpDeleteOne}, env.ops())

	_, err = env.table(t, "accounts").ReadRow(ctx, 1)
	assert.ErrorIs(t, err, chain.ErrRowNotFound)

	env.withMirror(t, func(s *store.Store) {
		idx, err := s.RowIndexes(ctx, "accounts")
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 2}, idx)
	})

	env.chain.ResetCalls()
	res = env.mustExec(t, "UPDATE accounts SET active = false WHERE id = 99")
	assert.Empty(t, res.RowIndexes)
	assert.Empty(t, env.chain.Calls(), "no matching rows means no chain call")
}

func TestUpdateNullRejected(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)
	env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`)

	_, err := env.exec("UPDATE accounts SET wallet = NULL WHERE id = 1")
	assert.True(t, ir.IsCode(err, ir.CodeValidation))
}

func TestChainFailureRollsBackMirror(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)

	boom := errors.New("execution reverted")
	env.chain.FailOn(chain.OpInsertOne, boom)

	_, err := env.exec(`INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.CodeChainCall))
	assert.True(t, ir.Retryable(err))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, env.mirrorCount(t, "accounts"))

	// The same statement succeeds once the chain accepts it.
	res := env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`)
	assert.Equal(t, []uint64{0}, res.RowIndexes)
	assert.Equal(t, 1, env.mirrorCount(t, "accounts"))
}

func TestChainFailureRollsBackSchema(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)
	env.chain.FailOn(chain.OpAddColumnType, errors.New("reverted"))

	_, err := env.exec("ALTER TABLE accounts ADD COLUMN note TEXT")
	assert.True(t, ir.IsCode(err, ir.CodeChainCall))

	env.withMirror(t, func(s *store.Store) {
		cols, err := s.TableColumns(context.Background(), "accounts")
		require.NoError(t, err)
		assert.NotContains(t, cols, "note")
	})
}

func TestCreateFailureLeavesNoMirrorTable(t *testing.T) {
	env := newTestEnv(t)
	env.chain.FailOn(chain.OpCreateTable, errors.New("out of gas"))

	_, err := env.exec(createAccounts)
	assert.True(t, ir.IsCode(err, ir.CodeChainCall))

	env.withMirror(t, func(s *store.Store) {
		ok, err := s.HasTable(context.Background(), "accounts")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// failingRestore is a mirror whose restore always fails.
type failingRestore struct {
	*store.Store
}

func (failingRestore) Restore(*store.Snapshot) error {
	return errors.New("disk full")
}

func TestRollbackFailureCarriesBothErrors(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)

	broken := MirrorOpenerFunc(func(ctx context.Context, addr ir.Address) (Mirror, error) {
		s, err := env.mirrors.Open(ctx, addr)
		if err != nil {
			return nil, err
		}
		return failingRestore{s}, nil
	})
	coord := New(mapResolver{"ledger": env.addr}, env.chain, broken,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	boom := errors.New("execution reverted")
	env.chain.FailOn(chain.OpInsertOne, boom)
	_, err := coord.Execute(context.Background(),
		`INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`, testOwner, "ledger")

	require.Error(t, err)
	assert.True(t, ir.IsRollbackFailure(err))
	assert.True(t, ir.IsCode(err, ir.CodeRollbackFailure))
	assert.False(t, ir.Retryable(err))
	assert.ErrorIs(t, err, boom, "the triggering error stays reachable")
	assert.ErrorContains(t, err, "disk full")
}

func TestMirrorDivergenceStopsDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustExec(t, createAccounts)
	env.mustExec(t, `INSERT INTO accounts (wallet, active, balance) VALUES ('`+testWallet+`', true, 1)`)

	// A row written to the chain behind the mirror's back.
	_, err := env.table(t, "accounts").InsertOne(ctx, []uint64{2}, [][]byte{{0x01}})
	require.NoError(t, err)
	env.chain.ResetCalls()

	_, err = env.exec("DELETE FROM accounts WHERE active = true")
	require.Error(t, err)
	assert.True(t, IsDivergence(err))
	assert.Empty(t, env.chain.Calls())
	assert.Equal(t, 1, env.mirrorCount(t, "accounts"))
}

func TestAlterActionsInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustExec(t, createAccounts)
	env.chain.ResetCalls()

	env.mustExec(t, "ALTER TABLE accounts ADD COLUMN note TEXT, RENAME COLUMN note TO memo")
	assert.Equal(t, []string{chain.OpAddColumnType, chain.OpRenameColumnType}, env.ops())

	cols, err := env.table(t, "accounts").ActiveColumnTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.ColumnDefinition{Name: "memo", Tag: ir.TagText, Index: 4}, cols[len(cols)-1])

	env.mustExec(t, "ALTER TABLE accounts DROP COLUMN memo")
	cols, err = env.table(t, "accounts").ActiveColumnTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, cols, 4)

	env.mustExec(t, "ALTER TABLE accounts RENAME TO ledger_accounts")
	db, err := env.chain.Database(ctx, env.addr)
	require.NoError(t, err)
	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger_accounts"}, names)

	_, err = env.exec("ALTER TABLE ledger_accounts DROP COLUMN missing")
	assert.True(t, ir.IsCode(err, ir.CodeColumnNotFound))
}

func TestCreateAndDropIfClauses(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)
	env.chain.ResetCalls()

	env.mustExec(t, "CREATE TABLE IF NOT EXISTS accounts (id INTEGER)")
	assert.Empty(t, env.chain.Calls(), "existing table is not recreated")

	env.mustExec(t, "DROP TABLE IF EXISTS missing")
	assert.Empty(t, env.chain.Calls())

	_, err := env.exec("DROP TABLE missing")
	assert.True(t, ir.IsCode(err, ir.CodeTableNotFound))

	env.mustExec(t, "DROP TABLE accounts")
	require.Len(t, env.chain.Calls(), 1)
	assert.Equal(t, chain.OpDropTable, env.chain.Calls()[0].Op)
	assert.Equal(t, uint64(0), env.chain.Calls()[0].Args["index"])
}

func TestUnsupportedColumnTypeBeforeMutation(t *testing.T) {
	env := newTestEnv(t)
	env.chain.ResetCalls()

	_, err := env.exec("CREATE TABLE notes (body VARCHAR(10))")
	assert.True(t, ir.IsCode(err, ir.CodeUnsupportedColumnType))
	assert.Empty(t, env.chain.Calls())

	env.withMirror(t, func(s *store.Store) {
		ok, err := s.HasTable(context.Background(), "notes")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExecuteErrors(t *testing.T) {
	env := newTestEnv(t)
	env.mustExec(t, createAccounts)

	tests := []struct {
		name  string
		query string
		code  ir.ErrorCode
	}{
		{"unknown insert column", "INSERT INTO accounts (nope) VALUES (1)", ir.CodeColumnNotFound},
		{"unknown table", "INSERT INTO ghosts (id) VALUES (1)", ir.CodeTableNotFound},
		{"bool out of range", "INSERT INTO accounts (active) VALUES (7)", ir.CodeValidation},
		{"text into float", "INSERT INTO accounts (balance) VALUES ('lots')", ir.CodeValidation},
		{"reserved identifier", "SELECT sei_caret_onchain_index FROM accounts", ir.CodeReservedIdentifier},
		{"unsupported statement", "CREATE VIEW v AS SELECT 1", ir.CodeUnsupportedQueryType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.exec(tt.query)
			require.Error(t, err)
			code, _ := ir.CodeOf(err)
			assert.Equal(t, tt.code, code, err.Error())
		})
	}
	assert.Equal(t, 0, env.mirrorCount(t, "accounts"))
}

func TestResolutionError(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.coord.Execute(context.Background(), createAccounts, testOwner, "unknown")
	assert.True(t, ir.IsCode(err, ir.CodeResolution))
}

func TestConcurrentExecutesSerialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustExec(t, createAccounts)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.exec(fmt.Sprintf(`INSERT INTO accounts (wallet, active, balance) VALUES ('%s', true, %d)`, testWallet, i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := env.table(t, "accounts").RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), n)
	assert.Equal(t, writers, env.mirrorCount(t, "accounts"))

	env.withMirror(t, func(s *store.Store) {
		idx, err := s.RowIndexes(ctx, "accounts")
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{0, 1, 2, 3, 4, 5, 6, 7}, idx)
	})
	assert.Zero(t, env.coord.locks.size())
}

func TestFixedExecutionIDs(t *testing.T) {
	env := newTestEnv(t, WithIDGenerator(NewFixedGenerator("exec-1", "exec-2")))
	res := env.mustExec(t, createAccounts)
	assert.Equal(t, "exec-1", res.ExecutionID)
	res = env.mustExec(t, "SELECT * FROM accounts")
	assert.Equal(t, "exec-2", res.ExecutionID)
}
