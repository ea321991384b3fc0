// Package augment turns caller SQL with domain column types into mirror
// SQL plus a typed statement tree.
//
// The pipeline:
//
//  1. reject input naming the reserved bookkeeping prefix
//  2. substitute ADDRESS, BOOL, and FLOAT in type positions
//  3. parse with the generic parser
//  4. restore the domain types onto the column definitions
//  5. tag every literal with its inferred type and native value, then
//     retype literals bound to a column by that column's type
//  6. rewrite per statement kind (bookkeeping column, sentinel, RETURNING *,
//     wildcard expansion)
//  7. regenerate SQL and clean up identifier quoting
package augment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/seiql/internal/ir"
	"github.com/roach88/seiql/internal/queryir"
	"github.com/roach88/seiql/internal/querysql"
	"github.com/roach88/seiql/internal/sqlparse"
)

// SchemaLookup lists the mirror columns of a table, bookkeeping column
// included, in declaration order. A missing table is reported with
// ir.CodeTableNotFound.
type SchemaLookup interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
}

// AugmentedQuery is the result of augmenting one statement.
type AugmentedQuery struct {
	// SQL is the mirror SQL. ALTER statements with several actions are
	// joined with a space.
	SQL string

	// Statements holds each mirror statement separately.
	Statements []string

	Kind queryir.StatementKind

	// Restored is the parsed statement with domain column types restored.
	Restored queryir.Statement

	// Typed is Restored with every literal tagged. It carries none of the
	// mirror rewrites.
	Typed queryir.Statement

	Mappings []ir.TypeMapping
}

// Augmenter runs the augmentation pipeline. It is stateless and safe for
// concurrent use.
type Augmenter struct {
	compiler *querysql.SQLCompiler
	logger   *slog.Logger
}

// Option configures an Augmenter.
type Option func(*Augmenter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Augmenter) {
		a.logger = l
	}
}

// WithCompiler replaces the SQL generator.
func WithCompiler(c *querysql.SQLCompiler) Option {
	return func(a *Augmenter) {
		a.compiler = c
	}
}

// New creates an Augmenter.
func New(opts ...Option) *Augmenter {
	a := &Augmenter{
		compiler: querysql.NewSQLCompiler(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Augment rewrites raw for the mirror. lookup expands SELECT * and may be
// nil for other statements. When it also implements TypeLookup, literals
// take the type of the column they are bound to.
func (a *Augmenter) Augment(ctx context.Context, raw string, lookup SchemaLookup) (*AugmentedQuery, error) {
	if strings.Contains(strings.ToLower(raw), ir.BookkeepingPrefix) {
		return nil, ir.Errorf(ir.CodeReservedIdentifier,
			"identifiers starting with %q are reserved", ir.BookkeepingPrefix)
	}

	substituted, mappings, err := substituteTypes(raw)
	if err != nil {
		return nil, err
	}

	stmt, err := sqlparse.Parse(substituted)
	if err != nil {
		return nil, err
	}

	if err := restoreTypes(stmt, mappings); err != nil {
		return nil, err
	}

	typed := queryir.Clone(stmt)
	if err := tagLiterals(typed); err != nil {
		return nil, err
	}
	a.coerceLiterals(ctx, typed, lookup)

	rewritten := queryir.Clone(typed)
	if err := a.rewrite(ctx, rewritten, lookup); err != nil {
		return nil, err
	}

	stmts, err := a.compiler.Compile(rewritten)
	if err != nil {
		return nil, ir.WrapError(ir.CodeParse, err, "generate mirror SQL")
	}

	a.logger.Debug("augmented query",
		"kind", stmt.Kind(),
		"table", queryir.StatementTable(stmt),
		"mappings", len(mappings),
	)

	return &AugmentedQuery{
		SQL:        strings.Join(stmts, " "),
		Statements: stmts,
		Kind:       stmt.Kind(),
		Restored:   stmt,
		Typed:      typed,
		Mappings:   mappings,
	}, nil
}

// restoreTypes walks column definitions in declaration order and puts the
// domain keyword back wherever a substitution was recorded at the column's
// type offset.
func restoreTypes(stmt queryir.Statement, mappings []ir.TypeMapping) error {
	byOffset := make(map[int]ir.TypeMapping, len(mappings))
	for _, m := range mappings {
		byOffset[m.Offset] = m
	}

	restored := 0
	for _, col := range queryir.ColumnDefs(stmt) {
		col.Canonical = col.Type
		m, ok := byOffset[col.TypeOffset]
		if !ok {
			continue
		}
		if col.Type != m.Canonical {
			return ir.Errorf(ir.CodeParse,
				"column %s: expected type %s at offset %d, found %s", col.Name, m.Canonical, m.Offset, col.Type)
		}
		col.Type = m.Original.String()
		restored++
	}
	if restored != len(mappings) {
		return ir.Errorf(ir.CodeParse, "restored %d of %d domain column types", restored, len(mappings))
	}
	return nil
}

func (a *Augmenter) rewrite(ctx context.Context, stmt queryir.Statement, lookup SchemaLookup) error {
	switch s := stmt.(type) {
	case *queryir.CreateTable:
		s.Columns = append(s.Columns, &queryir.ColumnDef{
			Name:      ir.BookkeepingColumn,
			Type:      ir.TagInteger.String(),
			Canonical: ir.TagInteger.String(),
		})

	case *queryir.Insert:
		s.Columns = append(s.Columns, ir.BookkeepingColumn)
		for i := range s.Rows {
			s.Rows[i] = append(s.Rows[i], pendingIndex(i))
		}
		s.ReturnAll = true

	case *queryir.Select:
		if !s.Star || s.From == "" {
			return nil
		}
		if lookup == nil {
			return fmt.Errorf("expand SELECT * on %s: no schema lookup", s.From)
		}
		cols, err := lookup.TableColumns(ctx, s.From)
		if err != nil {
			return err
		}
		s.Star = false
		for _, c := range cols {
			if ir.IsBookkeeping(c) {
				continue
			}
			s.Items = append(s.Items, queryir.SelectItem{Expr: &queryir.ColumnRef{Name: c}})
		}
		if len(s.Items) == 0 {
			return ir.Errorf(ir.CodeTableNotFound, "table %s has no visible columns", s.From).WithTable(s.From)
		}

	case *queryir.Update:
		s.ReturnAll = true

	case *queryir.Delete:
		s.ReturnAll = true
	}
	return nil
}

func pendingIndex(row int) *queryir.Literal {
	n := ir.PendingIndex(row)
	return &queryir.Literal{
		Kind:   queryir.LitNumber,
		Text:   fmt.Sprint(n),
		Tagged: true,
		Tag:    ir.TagInteger,
		Value:  ir.IRInt(n),
	}
}
