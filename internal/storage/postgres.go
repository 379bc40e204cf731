package storage

import (
	"context"
	"convmem/pkg"
	"convmem/src/logger"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresIndex persists semantic records in PostgreSQL with pgvector.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

func NewPostgresIndex(ctx context.Context, databaseURL string, dimensions int) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w: %w", ErrIndexUnavailable, err)
	}

	if err := initSchema(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresIndex{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS semantic_records (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			user_id TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			sequence BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL,
			embedding vector(%d) NOT NULL
		);`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_semantic_records_user ON semantic_records (collection, user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// vectorLiteral renders v in pgvector's text input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (s *PostgresIndex) Upsert(ctx context.Context, collection string, record SemanticRecord) error {
	turn := record.Payload
	if turn.UserID == "" {
		return ErrMissingUserID
	}

	payload, err := sonic.MarshalString(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO semantic_records (id, collection, user_id, intent, sequence, created_at, payload, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::vector)
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding, intent = EXCLUDED.intent`,
		record.ID,
		collection,
		turn.UserID,
		turn.Intent,
		turn.Sequence,
		turn.CreatedAt,
		payload,
		vectorLiteral(record.Vector),
	)
	if err != nil {
		return indexErr("upsert record", err)
	}
	return nil
}

func (s *PostgresIndex) QueryTopK(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]ScoredRecord, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payload, 1 - (embedding <=> $1::vector) AS similarity
		 FROM semantic_records
		 WHERE collection = $2 AND user_id = $3 AND ($4::text = '' OR intent = $4)
		 ORDER BY embedding <=> $1::vector
		 LIMIT $5`,
		vectorLiteral(vector),
		collection,
		filter.UserID,
		filter.Intent,
		k,
	)
	if err != nil {
		return nil, indexErr("query records", err)
	}
	defer rows.Close()

	hits := make([]ScoredRecord, 0, k)
	for rows.Next() {
		var (
			payload    []byte
			similarity float64
		)
		if err := rows.Scan(&payload, &similarity); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		var turn pkg.Turn
		if err := sonic.Unmarshal(payload, &turn); err != nil {
			logger.Warn().Err(err).Str("user_id", filter.UserID).Msg("Skipping undecodable postgres record")
			continue
		}
		hits = append(hits, ScoredRecord{Payload: turn, Score: clampScore(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("iterate records", err)
	}

	sortScored(hits)
	return hits, nil
}

func (s *PostgresIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM semantic_records WHERE collection = $1 AND user_id = $2 AND ($3::text = '' OR intent = $3)`,
		collection, filter.UserID, filter.Intent,
	)
	if err != nil {
		return 0, indexErr("delete records", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresIndex) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM semantic_records WHERE collection = $1 AND user_id = $2`,
		collection, filter.UserID,
	).Scan(&n)
	if err != nil {
		return 0, indexErr("count records", err)
	}
	return n, nil
}

func (s *PostgresIndex) Close() error {
	s.pool.Close()
	return nil
}

var _ SemanticIndex = (*PostgresIndex)(nil)
