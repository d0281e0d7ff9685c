package db

import (
	"context"
	"fmt"
	"outreach/pkg/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close()
}

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, conf config.Postgres) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(conf.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if conf.MaxConnections <= 0 {
		poolCfg.MaxConns = 5
	} else {
		poolCfg.MaxConns = conf.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	// Migrations run through database/sql on top of the pgx stdlib driver.
	sqlDB := stdlib.OpenDB(*poolCfg.ConnConfig)
	defer sqlDB.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "resources/migrations"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

// ===== Ambient transaction through context =====

type txKey struct{}

func (p *Postgres) InjectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func (p *Postgres) ExtractTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// Wrappers below route through the transaction in ctx when one is present.

func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.Exec(ctx, query, args...)
	}
	return p.Pool.Exec(ctx, query, args...)
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.Query(ctx, query, args...)
	}
	return p.Pool.Query(ctx, query, args...)
}

func (p *Postgres) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if tx := p.ExtractTx(ctx); tx != nil {
		return tx.QueryRow(ctx, query, args...)
	}
	return p.Pool.QueryRow(ctx, query, args...)
}

// WithinTransaction runs tFunc inside a transaction injected into ctx.
// Commit/rollback is driven by the single defer over the named return.
func (p *Postgres) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) (err error) {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = tFunc(p.InjectTx(ctx, tx))
	return
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
