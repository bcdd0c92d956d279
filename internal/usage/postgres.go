package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/shoplens/cartdetect/internal/db"
	"github.com/shoplens/cartdetect/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_usage":       `INSERT INTO token_usage (id, user_id, model_id, total_tokens, timestamp) VALUES ($1, $2, $3, $4, $5)`,
	"list_usage_by_user": `SELECT id, user_id, model_id, total_tokens, timestamp FROM token_usage WHERE user_id = $1 ORDER BY timestamp`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS token_usage (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id      TEXT,
	model_id     TEXT NOT NULL,
	total_tokens BIGINT NOT NULL,
	timestamp    BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_token_usage_user_id ON token_usage(user_id);
CREATE INDEX IF NOT EXISTS idx_token_usage_model_id ON token_usage(model_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, ev model.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_usage (id, user_id, model_id, total_tokens, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.UserID, ev.ModelID, ev.TotalTokens, ev.Timestamp,
	)
	return eris.Wrap(err, "postgres: insert usage event")
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID *string) ([]model.UsageEvent, error) {
	query := `SELECT id, user_id, model_id, total_tokens, timestamp FROM token_usage WHERE user_id IS NULL ORDER BY timestamp`
	args := []any{}
	if userID != nil {
		query = `SELECT id, user_id, model_id, total_tokens, timestamp FROM token_usage WHERE user_id = $1 ORDER BY timestamp`
		args = append(args, *userID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage events")
	}
	defer rows.Close()

	var out []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ModelID, &ev.TotalTokens, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate usage events")
}
