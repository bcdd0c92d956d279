package usage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/shoplens/cartdetect/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS token_usage (
	id           TEXT PRIMARY KEY,
	user_id      TEXT,
	model_id     TEXT NOT NULL,
	total_tokens INTEGER NOT NULL,
	timestamp    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_token_usage_user_id ON token_usage(user_id);
CREATE INDEX IF NOT EXISTS idx_token_usage_model_id ON token_usage(model_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, ev model.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage (id, user_id, model_id, total_tokens, timestamp) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.ModelID, ev.TotalTokens, ev.Timestamp,
	)
	return eris.Wrap(err, "sqlite: insert usage event")
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID *string) ([]model.UsageEvent, error) {
	query := `SELECT id, user_id, model_id, total_tokens, timestamp FROM token_usage WHERE user_id IS NULL ORDER BY timestamp`
	args := []any{}
	if userID != nil {
		query = `SELECT id, user_id, model_id, total_tokens, timestamp FROM token_usage WHERE user_id = ? ORDER BY timestamp`
		args = append(args, *userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage events")
	}
	defer rows.Close()

	var out []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ModelID, &ev.TotalTokens, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate usage events")
}
