package kvstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Postgres is a Store backed by the paytrust.kv table. Expiry is evaluated
// against the database clock.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// Migrate creates the schema if it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating kv schema: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := p.db.QueryRowContext(ctx, `
        SELECT value FROM paytrust.kv WHERE key=$1 AND expires_at > now()
    `, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting key: %w", err)
	}
	return val, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO paytrust.kv(key, value, expires_at)
        VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
        ON CONFLICT (key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at
    `, key, value, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("upserting key: %w", err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '3s'`); err != nil {
		return err
	}

	// an expired row must not block re-creation of the same key
	if _, err := tx.ExecContext(ctx, `DELETE FROM paytrust.kv WHERE key=$1 AND expires_at <= now()`, key); err != nil {
		return fmt.Errorf("deleting expired key: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO paytrust.kv(key, value, expires_at)
        VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
    `, key, value, ttl.Milliseconds())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting key: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
        UPDATE paytrust.kv SET value=$3
         WHERE key=$1 AND value=$2 AND expires_at > now()
    `, key, old, new)
	if err != nil {
		return false, fmt.Errorf("updating key: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM paytrust.kv WHERE key=$1`, key); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	return nil
}

// Sweep deletes expired rows in one statement.
func (p *Postgres) Sweep(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM paytrust.kv WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweeping kv: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
