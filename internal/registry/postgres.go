package registry

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/seiql/internal/ir"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS databases (
	owner   TEXT NOT NULL,
	name    TEXT NOT NULL,
	address TEXT NOT NULL,
	PRIMARY KEY (owner, name)
)`

// uniqueViolation is the SQLSTATE for a unique or primary key conflict.
const uniqueViolation = "23505"

// Postgres is a Resolver backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
}

// OpenPostgres connects to dsn and creates the registry table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating registry table: %w", err)
	}

	return &Postgres{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Resolve returns the address registered for (owner, name).
func (p *Postgres) Resolve(ctx context.Context, owner ir.Address, name string) (ir.Address, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return ir.Address{}, err
	}

	query, args, err := p.psql.Select("address").
		From(tableName).
		Where(sq.Eq{"owner": owner.Hex(), "name": n}).
		ToSql()
	if err != nil {
		return ir.Address{}, fmt.Errorf("build resolve query: %w", err)
	}

	var raw string
	err = p.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ir.Address{}, notFound(owner, n)
	}
	if err != nil {
		return ir.Address{}, ir.WrapError(ir.CodeResolution, err, "resolve %q", n)
	}
	addr, err := ir.ParseAddress(raw)
	if err != nil {
		return ir.Address{}, ir.WrapError(ir.CodeResolution, err, "stored address for %q", n)
	}
	return addr, nil
}

// Register records db. Names are unique per owner.
func (p *Postgres) Register(ctx context.Context, db ir.LogicalDatabase) error {
	rec, err := validateRecord(db)
	if err != nil {
		return err
	}

	query, args, err := p.psql.Insert(tableName).
		Columns("owner", "name", "address").
		Values(rec.Owner.Hex(), rec.Name, rec.Address.Hex()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build register query: %w", err)
	}

	_, err = p.pool.Exec(ctx, query, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return alreadyRegistered(rec, err)
	}
	if err != nil {
		return fmt.Errorf("register %q: %w", rec.Name, err)
	}
	return nil
}
