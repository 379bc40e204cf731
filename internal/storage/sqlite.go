package storage

import (
	"context"
	"convmem/pkg"
	"convmem/src/logger"
	"database/sql"
	"fmt"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteIndex stores semantic records in SQLite and ranks them with
// brute-force cosine similarity in Go. modernc.org/sqlite cannot load vector
// extensions, and per-user histories stay small.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite is single-writer and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS semantic_records (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			user_id TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL,
			payload TEXT NOT NULL,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_semantic_records_user ON semantic_records (collection, user_id);`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, collection string, record SemanticRecord) error {
	turn := record.Payload
	if turn.UserID == "" {
		return ErrMissingUserID
	}

	payload, err := sonic.MarshalString(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	embedding, err := sonic.Marshal(record.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO semantic_records (id, collection, user_id, intent, sequence, payload, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, collection, turn.UserID, turn.Intent, turn.Sequence, payload, embedding,
	)
	if err != nil {
		return indexErr("insert record", err)
	}
	return nil
}

func (s *SQLiteIndex) QueryTopK(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]ScoredRecord, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, embedding FROM semantic_records
		WHERE collection = ? AND user_id = ? AND (? = '' OR intent = ?)`,
		collection, filter.UserID, filter.Intent, filter.Intent,
	)
	if err != nil {
		return nil, indexErr("query records", err)
	}
	defer rows.Close()

	var hits []ScoredRecord
	for rows.Next() {
		var payload string
		var embedding []byte
		if err := rows.Scan(&payload, &embedding); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}

		var turn pkg.Turn
		var stored []float32
		if err := sonic.UnmarshalString(payload, &turn); err != nil {
			logger.Warn().Err(err).Str("user_id", filter.UserID).Msg("Skipping malformed sqlite record")
			continue
		}
		if err := sonic.Unmarshal(embedding, &stored); err != nil {
			logger.Warn().Err(err).Str("user_id", filter.UserID).Msg("Skipping malformed sqlite record")
			continue
		}
		hits = append(hits, ScoredRecord{Payload: turn, Score: clampScore(CosineSimilarity(vector, stored))})
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("iterate records", err)
	}

	sortScored(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *SQLiteIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM semantic_records WHERE collection = ? AND user_id = ? AND (? = '' OR intent = ?)`,
		collection, filter.UserID, filter.Intent, filter.Intent,
	)
	if err != nil {
		return 0, indexErr("delete records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteIndex) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM semantic_records WHERE collection = ? AND user_id = ?`,
		collection, filter.UserID,
	).Scan(&n)
	if err != nil {
		return 0, indexErr("count records", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

var _ SemanticIndex = (*SQLiteIndex)(nil)
