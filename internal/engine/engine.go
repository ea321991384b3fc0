package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/seiql/internal/augment"
	"github.com/roach88/seiql/internal/chain"
	"github.com/roach88/seiql/internal/codec"
	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
	"github.com/roach88/seiql/internal/store"
)

// Resolver maps (owner, logical name) to a database address.
type Resolver interface {
	Resolve(ctx context.Context, owner ir.Address, name string) (ir.Address, error)
}

// Codec converts values to and from on-chain cell bytes.
type Codec interface {
	Encode(v ir.IRValue, tag ir.TypeTag, column string) ([]byte, error)
	Decode(data []byte, tag ir.TypeTag) (ir.IRValue, error)
}

// Mirror is the local store kept in step with one chain database.
// *store.Store implements it.
type Mirror interface {
	augment.SchemaLookup
	Apply(ctx context.Context, stmts []string, returnsRows bool) (*store.Result, error)
	Snapshot(ctx context.Context) (*store.Snapshot, error)
	Restore(snap *store.Snapshot) error
	BackfillRowIndexes(ctx context.Context, table string, indices []uint64) error
	Close() error
}

// MirrorOpener opens the mirror bound to a database address.
type MirrorOpener interface {
	Open(ctx context.Context, addr ir.Address) (Mirror, error)
}

// MirrorOpenerFunc adapts a function to MirrorOpener.
type MirrorOpenerFunc func(ctx context.Context, addr ir.Address) (Mirror, error)

// Open calls f.
func (f MirrorOpenerFunc) Open(ctx context.Context, addr ir.Address) (Mirror, error) {
	return f(ctx, addr)
}

// StoreMirrors opens mirrors from a store factory.
func StoreMirrors(f *store.Factory) MirrorOpener {
	return MirrorOpenerFunc(func(ctx context.Context, addr ir.Address) (Mirror, error) {
		s, err := f.Open(ctx, addr)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Result is the outcome of one Execute call.
type Result struct {
	ExecutionID string                `json:"execution_id"`
	Kind        queryir.StatementKind `json:"kind"`

	// Columns and Rows hold the mirror's result rows with the bookkeeping
	// column removed. Values are int64, float64, string, []byte, or nil.
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// RowIndexes lists the chain rows written or removed.
	RowIndexes []uint64 `json:"row_indexes,omitempty"`
}

// Coordinator executes statements against a mirror and the chain, keeping
// the two consistent.
//
// Executions against one database address run one at a time; distinct
// addresses run in parallel. Once the mirror has been mutated, the call
// ignores caller cancellation and either commits on both sides or
// restores the mirror from the snapshot taken just before.
type Coordinator struct {
	resolver     Resolver
	gateway      chain.Gateway
	mirrors      MirrorOpener
	augmenter    *augment.Augmenter
	codec        Codec
	ids          IDGenerator
	logger       *slog.Logger
	chainTimeout time.Duration
	locks        *addressLocks
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithIDGenerator sets the execution id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithCodec replaces the value codec.
func WithCodec(cd Codec) Option {
	return func(c *Coordinator) {
		c.codec = cd
	}
}

// WithAugmenter replaces the query augmenter.
func WithAugmenter(a *augment.Augmenter) Option {
	return func(c *Coordinator) {
		c.augmenter = a
	}
}

// WithChainTimeout bounds the state-changing chain calls of one execution.
// Zero means no bound.
func WithChainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.chainTimeout = d
	}
}

// New creates a Coordinator.
func New(resolver Resolver, gateway chain.Gateway, mirrors MirrorOpener, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver: resolver,
		gateway:  gateway,
		mirrors:  mirrors,
		codec:    codec.Codec{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		locks:    newAddressLocks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.augmenter == nil {
		c.augmenter = augment.New(augment.WithLogger(c.logger))
	}
	return c
}

// Execute runs query against the database owner registered as name.
//
// Failures before the mirror is touched return directly. Failures after
// restore the mirror first; if that restore fails the error is an
// *ir.RollbackError carrying both causes.
func (c *Coordinator) Execute(ctx context.Context, query string, owner ir.Address, name string) (*Result, error) {
	id := c.ids.Generate()
	log := c.logger.With("execution_id", id)

	addr, err := c.resolver.Resolve(ctx, owner, name)
	if err != nil {
		if _, ok := ir.CodeOf(err); !ok {
			err = ir.WrapError(ir.CodeResolution, err, "resolve %q for %s", name, owner.Hex())
		}
		return nil, err
	}
	log = log.With("address", addr.Hex())

	unlock := c.locks.lock(addr)
	defer unlock()

	mirror, err := c.mirrors.Open(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer mirror.Close()

	aq, err := c.augmenter.Augment(ctx, query, schemaSource{Mirror: mirror, coord: c, addr: addr})
	if err != nil {
		return nil, err
	}
	table := queryir.StatementTable(aq.Typed)
	log = log.With("kind", aq.Kind, "table", table)

	if err := checkScope(aq.Typed); err != nil {
		log.Warn("unscoped mutation rejected")
		return nil, err
	}

	res := &Result{ExecutionID: id, Kind: aq.Kind}

	if aq.Kind == queryir.KindSelect {
		out, err := mirror.Apply(ctx, aq.Statements, true)
		if err != nil {
			return nil, withTable(err, table)
		}
		res.setRows(out)
		log.Debug("select served from mirror", "rows", len(res.Rows))
		return res, nil
	}

	db, err := c.gateway.Database(ctx, addr)
	if err != nil {
		return nil, readError(err, "bind database %s", addr.Hex())
	}
	op, err := c.prepare(ctx, db, aq.Typed)
	if err != nil {
		return nil, err
	}

	snap, err := mirror.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	returnsRows := aq.Kind == queryir.KindInsert || aq.Kind == queryir.KindUpdate || aq.Kind == queryir.KindDelete
	out, err := mirror.Apply(ctx, aq.Statements, returnsRows)
	if err != nil {
		return nil, c.rollback(log, mirror, snap, withTable(err, table))
	}
	log.Debug("mirror applied", "statements", len(aq.Statements))

	// The mirror has changed: finish or roll back regardless of the caller.
	dctx := context.WithoutCancel(ctx)

	indices, err := c.commit(dctx, op, mirror, out)
	if err != nil {
		return nil, c.rollback(log, mirror, snap, err)
	}

	res.setRows(out)
	res.RowIndexes = indices
	log.Info("execution committed", "chain_rows", len(indices))
	return res, nil
}

// commit cross-checks the mirror's rows against the prepared operation and
// dispatches it to the chain.
func (c *Coordinator) commit(ctx context.Context, op *operation, mirror Mirror, out *store.Result) ([]uint64, error) {
	if op.checkTargets {
		if err := verifyTargets(op, out); err != nil {
			return nil, err
		}
	}
	if op.dispatch == nil {
		c.logger.Debug("chain dispatch skipped", "table", op.table)
		return nil, nil
	}

	if c.chainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.chainTimeout)
		defer cancel()
	}
	return op.dispatch(ctx, mirror, out)
}

// rollback restores the mirror after cause and returns the error to report.
func (c *Coordinator) rollback(log *slog.Logger, mirror Mirror, snap *store.Snapshot, cause error) error {
	if err := mirror.Restore(snap); err != nil {
		log.Error("mirror restore failed", "error", err, "trigger", cause)
		return &ir.RollbackError{Trigger: cause, Restore: err}
	}
	log.Warn("execution rolled back", "error", cause)
	return cause
}

func checkScope(stmt queryir.Statement) error {
	switch st := stmt.(type) {
	case *queryir.Update:
		if st.Where == nil {
			return newUnscopedError(st.Kind(), st.Table)
		}
	case *queryir.Delete:
		if st.Where == nil {
			return newUnscopedError(st.Kind(), st.Table)
		}
	}
	return nil
}

// verifyTargets compares the bookkeeping indices of the rows the mirror
// touched with the chain rows the WHERE clause matched.
func verifyTargets(op *operation, out *store.Result) error {
	col := slices.IndexFunc(out.Columns, ir.IsBookkeeping)
	if col < 0 {
		return ir.Errorf(ir.CodeMirrorDiverged, "mirror returned no bookkeeping column").WithTable(op.table)
	}

	mirrored := make([]int64, 0, len(out.Rows))
	for _, row := range out.Rows {
		n, ok := row[col].(int64)
		if !ok {
			return ir.Errorf(ir.CodeMirrorDiverged, "mirror row has bookkeeping value %v", row[col]).WithTable(op.table)
		}
		mirrored = append(mirrored, n)
	}
	chained := make([]int64, len(op.targets))
	for i, t := range op.targets {
		chained[i] = int64(t)
	}
	slices.Sort(mirrored)
	slices.Sort(chained)

	if !slices.Equal(mirrored, chained) {
		return ir.Errorf(ir.CodeMirrorDiverged, "mirror touched rows %v, chain matched %v", mirrored, chained).WithTable(op.table)
	}
	return nil
}

// setRows copies out into r without the bookkeeping column.
func (r *Result) setRows(out *store.Result) {
	if out == nil {
		return
	}
	keep := make([]int, 0, len(out.Columns))
	for i, name := range out.Columns {
		if !ir.IsBookkeeping(name) {
			keep = append(keep, i)
			r.Columns = append(r.Columns, name)
		}
	}
	for _, row := range out.Rows {
		vals := make([]any, len(keep))
		for j, i := range keep {
			vals[j] = row[i]
		}
		r.Rows = append(r.Rows, vals)
	}
}

// schemaSource serves the augmenter: column names come from the mirror,
// column types from the chain.
type schemaSource struct {
	Mirror
	coord *Coordinator
	addr  ir.Address
}

// ColumnTypes implements augment.TypeLookup with view calls only.
func (s schemaSource) ColumnTypes(ctx context.Context, table string) (map[string]ir.TypeTag, error) {
	db, err := s.coord.gateway.Database(ctx, s.addr)
	if err != nil {
		return nil, err
	}
	_, schema, err := s.coord.bindTable(ctx, db, table)
	if err != nil {
		return nil, err
	}
	types := make(map[string]ir.TypeTag, len(schema))
	for _, col := range schema {
		types[strings.ToLower(col.Name)] = col.Tag
	}
	return types, nil
}

// columnIndexFold returns the position of name in names, ignoring case.
func columnIndexFold(names []string, name string) int {
	return slices.IndexFunc(names, func(n string) bool { return strings.EqualFold(n, name) })
}
