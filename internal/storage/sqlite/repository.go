package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// Repository implements storage.Repository on an in-memory SQLite database.
type Repository struct {
	db     *sql.DB
	opts   storage.Options
	closed atomic.Bool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens a fresh private in-memory database and creates the
// schema.
func NewRepository(opts ...storage.Option) (*Repository, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Every connection to ":memory:" gets its own database, so the pool is
	// pinned to exactly one long-lived connection. This also serialises all
	// statements, which is what keeps cascades and inserts atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Repository{db: db, opts: storage.ApplyOptions(opts...)}, nil
}

const selectSession = `
	SELECT s.id, s.name, s.created_at,
	       (SELECT COUNT(*) FROM memories m WHERE m.session_id = s.id)
	FROM sessions s`

const selectMemory = `SELECT id, session_id, content, created_at, tags FROM memories`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateSession implements storage.Repository.
func (r *Repository) CreateSession(ctx context.Context, name string) (*types.Session, error) {
	trimmed, err := storage.ValidateSessionName(name)
	if err != nil {
		return nil, err
	}
	if r.closed.Load() {
		return nil, storage.ErrClosed
	}

	s := &types.Session{
		ID:        r.opts.IDs.NewID(),
		Name:      trimmed,
		CreatedAt: r.opts.Clock.Now(),
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at) VALUES (?, ?, ?)`,
		s.ID, s.Name, s.CreatedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("sqlite: CreateSession: %w", err)
	}
	return s, nil
}

// GetSession implements storage.Repository.
func (r *Repository) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, types.ErrEmptySessionID
	}
	if r.closed.Load() {
		return nil, storage.ErrClosed
	}
	return getSession(ctx, r.db, id)
}

// ListSessions implements storage.Repository.
func (r *Repository) ListSessions(ctx context.Context) ([]types.Session, error) {
	if r.closed.Load() {
		return nil, storage.ErrClosed
	}

	rows, err := r.db.QueryContext(ctx, selectSession+` ORDER BY s.seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListSessions: %w", err)
	}
	defer rows.Close()

	out := []types.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListSessions scan: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: ListSessions: %w", err)
	}
	return out, nil
}

// DeleteSession implements storage.Repository. The foreign key cascade
// removes the session's memories in the same statement.
func (r *Repository) DeleteSession(ctx context.Context, id string) (*types.Session, int, error) {
	if id == "" {
		return nil, 0, types.ErrEmptySessionID
	}
	if r.closed.Load() {
		return nil, 0, storage.ErrClosed
	}

	var deleted *types.Session
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: DeleteSession: %w", err)
		}
		deleted = s
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return deleted, deleted.MemoryCount, nil
}

// ClearSession implements storage.Repository.
func (r *Repository) ClearSession(ctx context.Context, id string) (*types.Session, int, error) {
	if id == "" {
		return nil, 0, types.ErrEmptySessionID
	}
	if r.closed.Load() {
		return nil, 0, storage.ErrClosed
	}

	var (
		cleared *types.Session
		removed int
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE session_id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: ClearSession: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: ClearSession: %w", err)
		}
		s.MemoryCount = 0
		cleared, removed = s, int(n)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cleared, removed, nil
}

// AddMemory implements storage.Repository.
func (r *Repository) AddMemory(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, error) {
	m, _, err := r.AddMemoryWithSession(ctx, sessionID, content, tags)
	return m, err
}

// AddMemoryWithSession implements storage.Repository. The session is re-read
// inside the insert transaction.
func (r *Repository) AddMemoryWithSession(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, *types.Session, error) {
	trimmed, err := storage.ValidateNewMemory(sessionID, content)
	if err != nil {
		return nil, nil, err
	}
	if r.closed.Load() {
		return nil, nil, storage.ErrClosed
	}

	m := &types.Memory{
		SessionID: sessionID,
		Content:   trimmed,
		Tags:      types.CopyTags(tags),
	}
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: AddMemory: marshal tags: %w", err)
	}

	var session *types.Session
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewSessionNotFound(sessionID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: AddMemory: %w", err)
		}

		m.ID = r.opts.IDs.NewID()
		m.CreatedAt = r.opts.Clock.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO memories (id, session_id, content, created_at, tags) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, m.Content, m.CreatedAt.UnixMicro(), string(tagsJSON))
		if err != nil {
			return fmt.Errorf("sqlite: AddMemory: %w", err)
		}

		session, err = getSession(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	out := m.Clone()
	return &out, session, nil
}

// GetMemories implements storage.Repository.
func (r *Repository) GetMemories(ctx context.Context, sessionID string) ([]types.Memory, error) {
	if sessionID == "" {
		return nil, types.ErrEmptySessionID
	}

	out, err := r.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	storage.NewestFirst(out)
	return out, nil
}

// RemoveMemory implements storage.Repository.
func (r *Repository) RemoveMemory(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, types.ErrEmptyID
	}
	if r.closed.Load() {
		return nil, storage.ErrClosed
	}

	var removed *types.Memory
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMemory(tx.QueryRowContext(ctx, selectMemory+` WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewMemoryNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("sqlite: RemoveMemory: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: RemoveMemory: %w", err)
		}
		removed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Snapshot implements storage.Repository.
func (r *Repository) Snapshot(ctx context.Context, sessionID string) ([]types.Memory, error) {
	if r.closed.Load() {
		return nil, storage.ErrClosed
	}

	if sessionID == "" {
		return queryMemories(ctx, r.db, selectMemory+` ORDER BY seq`)
	}

	var out []types.Memory
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NewSessionNotFound(sessionID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: Snapshot: %w", err)
		}
		out, err = queryMemories(ctx, tx, selectMemory+` WHERE session_id = ? ORDER BY seq`, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats implements storage.Repository.
func (r *Repository) Stats(ctx context.Context) (storage.Stats, error) {
	if r.closed.Load() {
		return storage.Stats{}, storage.ErrClosed
	}

	var st storage.Stats
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM sessions), (SELECT COUNT(*) FROM memories)`).
		Scan(&st.Sessions, &st.Memories)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("sqlite: Stats: %w", err)
	}
	return st, nil
}

// Close releases the connection, discarding the database.
func (r *Repository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.db.Close()
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func getSession(ctx context.Context, q queryer, id string) (*types.Session, error) {
	s, err := scanSession(q.QueryRowContext(ctx, selectSession+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewSessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetSession: %w", err)
	}
	return s, nil
}

func queryMemories(ctx context.Context, q queryer, query string, args ...any) ([]types.Memory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query memories: %w", err)
	}
	defer rows.Close()

	out := []types.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query memories: %w", err)
	}
	return out, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*types.Session, error) {
	var (
		s         types.Session
		createdAt int64
	)
	if err := sc.Scan(&s.ID, &s.Name, &createdAt, &s.MemoryCount); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMicro(createdAt)
	return &s, nil
}

func scanMemory(sc scanner) (*types.Memory, error) {
	var (
		m         types.Memory
		createdAt int64
		tagsJSON  string
	)
	if err := sc.Scan(&m.ID, &m.SessionID, &m.Content, &createdAt, &tagsJSON); err != nil {
		return nil, err
	}
	m.CreatedAt = time.UnixMicro(createdAt)

	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("memory %s tags: %w", m.ID, err)
	}
	m.Tags = types.CopyTags(tags)
	return &m, nil
}
