package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const createRequestersTable = `
CREATE TABLE IF NOT EXISTS requesters (
    id               TEXT PRIMARY KEY,
    tokens_allocated INTEGER NOT NULL DEFAULT 0 CHECK (tokens_allocated >= tokens_used),
    tokens_used      INTEGER NOT NULL DEFAULT 0 CHECK (tokens_used >= 0),
    email            TEXT NOT NULL DEFAULT '',
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_used_at     TIMESTAMPTZ
)`

// PostgresStore implements the quota Store on a transactional database for
// deployments where the single-writer file store is not enough.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore connects a pgx pool and creates the schema if absent.
func NewPostgresStore(ctx context.Context, dsn string, minConns, maxConns int, logger *log.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, createRequestersTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure requesters table: %w", err)
	}

	logger.Printf("Postgres quota store connected (min=%d, max=%d)", minConns, maxConns)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Authorize(ctx context.Context, id string) (int, error) {
	var allocated, used int
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT tokens_allocated, tokens_used, is_active FROM requesters WHERE id = $1`, id).
		Scan(&allocated, &used, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownRequester
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query requester %s: %w", id, err)
	}
	if !active {
		return 0, ErrInactive
	}
	if allocated-used <= 0 {
		return 0, ErrExhausted
	}
	return allocated - used, nil
}

// Commit consumes one token. The WHERE clause is the defensive re-check: an
// unknown or exhausted requester updates zero rows.
func (s *PostgresStore) Commit(ctx context.Context, id string) bool {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requesters
		    SET tokens_used = tokens_used + 1, last_used_at = now()
		  WHERE id = $1 AND tokens_allocated - tokens_used > 0`, id)
	if err != nil {
		s.logger.Printf("CRITICAL: failed to commit quota token for %s: %v", id, err)
		return false
	}
	return tag.RowsAffected() == 1
}

func (s *PostgresStore) List(ctx context.Context) ([]Requester, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tokens_allocated, tokens_used, email, is_active, created_at, last_used_at
		   FROM requesters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list requesters: %w", err)
	}
	defer rows.Close()

	var out []Requester
	for rows.Next() {
		var r Requester
		if err := rows.Scan(&r.ID, &r.TokensAllocated, &r.TokensUsed, &r.Email, &r.IsActive, &r.CreatedAt, &r.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requester row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Requester, error) {
	var r Requester
	err := s.pool.QueryRow(ctx,
		`SELECT id, tokens_allocated, tokens_used, email, is_active, created_at, last_used_at
		   FROM requesters WHERE id = $1`, id).
		Scan(&r.ID, &r.TokensAllocated, &r.TokensUsed, &r.Email, &r.IsActive, &r.CreatedAt, &r.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownRequester
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get requester %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) Add(ctx context.Context, id string, tokens int, email string) error {
	if tokens < 0 {
		return fmt.Errorf("token allocation cannot be negative")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO requesters (id, tokens_allocated, email, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		id, tokens, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add requester %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

func (s *PostgresStore) GrantTokens(ctx context.Context, id string, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requesters SET tokens_allocated = tokens_allocated + $2
		  WHERE id = $1 AND tokens_allocated + $2 >= tokens_used`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to grant tokens to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMissingUpdate(ctx, id, "grant would drop allocation below tokens already used")
	}
	return nil
}

func (s *PostgresStore) SetTokens(ctx context.Context, id string, total int) error {
	if total < 0 {
		return fmt.Errorf("token allocation cannot be negative")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE requesters SET tokens_allocated = $2
		  WHERE id = $1 AND $2 >= tokens_used`, id, total)
	if err != nil {
		return fmt.Errorf("failed to set tokens for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMissingUpdate(ctx, id, "total is below tokens already used")
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requesters SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set active flag for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownRequester
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := Stats{UpdatedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE is_active),
		        COALESCE(SUM(tokens_allocated), 0),
		        COALESCE(SUM(tokens_used), 0)
		   FROM requesters`).
		Scan(&st.TotalRequesters, &st.ActiveRequesters, &st.TokensAllocated, &st.TokensUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate quota stats: %w", err)
	}
	return &st, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// explainMissingUpdate distinguishes an unknown requester from a guarded
// update that the WHERE clause rejected.
func (s *PostgresStore) explainMissingUpdate(ctx context.Context, id, reason string) error {
	if _, err := s.Get(ctx, id); errors.Is(err, ErrUnknownRequester) {
		return ErrUnknownRequester
	}
	return fmt.Errorf("%s for requester %s", reason, id)
}

var _ Store = (*PostgresStore)(nil) // Compile-time interface check
