package results

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS test_results (
	key        TEXT PRIMARY KEY,
	outcome    TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

type PostgresStore struct {
	conn *pgxpool.Pool
}

// ConnectPostgres connects to uri and creates the results table if needed.
func ConnectPostgres(ctx context.Context, uri string) (*PostgresStore, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to db")
	}
	if _, err := conn.Exec(ctx, createResultsTable); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create results table")
	}
	return &PostgresStore{conn: conn}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*types.TestResult, error) {
	sql := `SELECT payload FROM test_results WHERE key = $1`

	var payload []byte
	if err := p.conn.QueryRow(ctx, sql, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get result %s", key)
	}
	return decodeResult(payload)
}

func (p *PostgresStore) Put(ctx context.Context, key string, r *types.TestResult) error {
	sql := `
INSERT INTO test_results (key, outcome, payload, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET outcome = EXCLUDED.outcome, payload = EXCLUDED.payload, updated_at = now()
`
	payload, err := encodeResult(r)
	if err != nil {
		return err
	}
	if _, err := p.conn.Exec(ctx, sql, key, r.Outcome.String(), payload); err != nil {
		return errors.Wrapf(err, "failed to insert result %s", key)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.conn.Close()
	return nil
}
