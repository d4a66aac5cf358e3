package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// Record is a persisted generation outcome: the terminal result plus its
// full attempt log, one row per request.
type Record struct {
	RequestID    string    `db:"request_id"`
	Kind         string    `db:"kind"`
	BackendID    string    `db:"backend_id"`
	Exhausted    bool      `db:"exhausted"`
	AttemptCount int       `db:"attempt_count"`
	Attempts     string    `db:"attempts"`
	CreatedAt    time.Time `db:"created_at"`
}

// Store persists generation results to SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the history database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS generation_results (
			request_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			backend_id TEXT,
			exhausted INTEGER NOT NULL DEFAULT 0,
			attempt_count INTEGER NOT NULL,
			attempts TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_results_kind ON generation_results(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_results_created ON generation_results(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Record stores a terminal generation result with its attempt log.
func (s *Store) Record(ctx context.Context, res *domain.Result) error {
	attempts, err := json.Marshal(res.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	query := `INSERT INTO generation_results (request_id, kind, backend_id, exhausted, attempt_count, attempts, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		res.RequestID, string(res.Kind), res.BackendID, res.Exhausted,
		len(res.Attempts), string(attempts), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

// Recent returns the most recently recorded results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT request_id, kind, backend_id, exhausted, attempt_count, attempts, created_at
	          FROM generation_results
	          ORDER BY created_at DESC
	          LIMIT ?`

	var records []*Record
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	return records, nil
}

// Get returns a single recorded result by request ID, with the attempt
// log decoded.
func (s *Store) Get(ctx context.Context, requestID string) (*Record, []domain.Attempt, error) {
	query := `SELECT request_id, kind, backend_id, exhausted, attempt_count, attempts, created_at
	          FROM generation_results WHERE request_id = ?`

	var rec Record
	if err := s.db.GetContext(ctx, &rec, query, requestID); err != nil {
		return nil, nil, fmt.Errorf("result %s not found: %w", requestID, err)
	}

	var attempts []domain.Attempt
	if err := json.Unmarshal([]byte(rec.Attempts), &attempts); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
	}

	return &rec, attempts, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
