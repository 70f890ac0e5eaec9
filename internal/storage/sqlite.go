package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database at dbPath and applies pending
// migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullableTime adapts *time.Time for nullable TIMESTAMP columns.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// --- Codebase operations ---

func (s *SQLiteStorage) CreateCodebase(ctx context.Context, cb *types.Codebase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codebases (id, repo_url, local_path, status, file_count, chunk_count, error_message, created_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cb.ID, cb.RepoURL.String(), cb.LocalPath, string(cb.Status),
		cb.FileCount, cb.ChunkCount, cb.ErrorMessage, cb.CreatedAt, nullableTime(cb.IndexedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("codebase for %s %w", cb.RepoURL.String(), ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create codebase: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetCodebase(ctx context.Context, id string) (*types.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_url, local_path, status, file_count, chunk_count, error_message, created_at, indexed_at
		FROM codebases WHERE id = ?`, id)
	return scanCodebase(row)
}

func (s *SQLiteStorage) GetCodebaseByRepoURL(ctx context.Context, repoURL string) (*types.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_url, local_path, status, file_count, chunk_count, error_message, created_at, indexed_at
		FROM codebases WHERE repo_url = ?`, repoURL)
	return scanCodebase(row)
}

func (s *SQLiteStorage) UpdateCodebase(ctx context.Context, cb *types.Codebase) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE codebases
		SET local_path = ?, status = ?, file_count = ?, chunk_count = ?, error_message = ?, indexed_at = ?
		WHERE id = ?`,
		cb.LocalPath, string(cb.Status), cb.FileCount, cb.ChunkCount,
		cb.ErrorMessage, nullableTime(cb.IndexedAt), cb.ID)
	if err != nil {
		return fmt.Errorf("failed to update codebase: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("codebase %s %w", cb.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) DeleteCodebase(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM codebases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete codebase: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("codebase %s %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) ListCodebases(ctx context.Context) ([]*types.Codebase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_url, local_path, status, file_count, chunk_count, error_message, created_at, indexed_at
		FROM codebases ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list codebases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codebases []*types.Codebase
	for rows.Next() {
		cb, err := scanCodebase(rows)
		if err != nil {
			return nil, err
		}
		codebases = append(codebases, cb)
	}
	return codebases, rows.Err()
}

// rowScanner lets scanCodebase serve both QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCodebase(row rowScanner) (*types.Codebase, error) {
	var cb types.Codebase
	var rawURL, status string
	var indexedAt sql.NullTime

	err := row.Scan(&cb.ID, &rawURL, &cb.LocalPath, &status, &cb.FileCount,
		&cb.ChunkCount, &cb.ErrorMessage, &cb.CreatedAt, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("codebase %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan codebase: %w", err)
	}

	cb.RepoURL, err = types.ParseRepoURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("stored repo url invalid: %w", err)
	}
	cb.Status = types.IngestStatus(status)
	if indexedAt.Valid {
		t := indexedAt.Time
		cb.IndexedAt = &t
	}
	return &cb, nil
}

// --- Chunk operations ---

func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, codebaseID string, chunks []types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE codebase_id = ?", codebaseID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (codebase_id, seq, file_path, start_line, end_line, content, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range chunks {
		c := &chunks[i]
		if _, err := stmt.ExecContext(ctx, codebaseID, c.Seq, c.FilePath,
			c.StartLine, c.EndLine, c.Content, c.ContentHash[:]); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Seq, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context, codebaseID string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT codebase_id, seq, file_path, start_line, end_line, content, content_hash
		FROM chunks WHERE codebase_id = ? ORDER BY seq`, codebaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChunks(rows)
}

func (s *SQLiteStorage) GetChunksBySeqs(ctx context.Context, codebaseID string, seqs []int) ([]types.Chunk, error) {
	if len(seqs) == 0 {
		return []types.Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(seqs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(seqs)+1)
	args = append(args, codebaseID)
	for _, seq := range seqs {
		args = append(args, seq)
	}

	query := fmt.Sprintf(`
		SELECT codebase_id, seq, file_path, start_line, end_line, content, content_hash
		FROM chunks WHERE codebase_id = ? AND seq IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}

	// Preserve the caller's seq order; search ranking depends on it.
	bySeq := make(map[int]types.Chunk, len(chunks))
	for _, c := range chunks {
		bySeq[c.Seq] = c
	}
	ordered := make([]types.Chunk, 0, len(chunks))
	for _, seq := range seqs {
		if c, ok := bySeq[seq]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func collectChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var hash []byte
		if err := rows.Scan(&c.CodebaseID, &c.Seq, &c.FilePath,
			&c.StartLine, &c.EndLine, &c.Content, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		copy(c.ContentHash[:], hash)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Embedding operations ---

func (s *SQLiteStorage) PutEmbeddings(ctx context.Context, codebaseID string, records []EmbeddingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (codebase_id, chunk_seq, vector, dimension, provider, model)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(codebase_id, chunk_seq) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, codebaseID, r.ChunkSeq,
			serializeVector(r.Vector), r.Dimension, r.Provider, r.Model); err != nil {
			return fmt.Errorf("failed to upsert embedding for chunk %d: %w", r.ChunkSeq, err)
		}
	}

	return tx.Commit()
}

// LoadIndex returns all persisted vectors of a codebase ordered by chunk
// sequence, for rebuilding an in-memory index.
func (s *SQLiteStorage) LoadIndex(ctx context.Context, codebaseID string) ([]vectorindex.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_seq, vector FROM embeddings
		WHERE codebase_id = ? ORDER BY chunk_seq`, codebaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []vectorindex.Entry
	for rows.Next() {
		var seq int
		var blob []byte
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		entries = append(entries, vectorindex.Entry{Seq: seq, Vector: deserializeVector(blob)})
	}
	return entries, rows.Err()
}

// --- Session operations ---

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *types.ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, codebase_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.CodebaseID, session.Title, session.CreatedAt, session.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("session %s %w", session.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*types.ChatSession, error) {
	var session types.ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, codebase_id, title, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.CodebaseID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, types.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, sources, created_at
		FROM messages WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var msg types.Message
		var role, sources string
		if err := rows.Scan(&role, &msg.Content, &sources, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = types.Role(role)
		if sources != "" && sources != "[]" {
			if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode message sources: %w", err)
			}
		}
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLiteStorage) ListSessions(ctx context.Context, codebaseID string) ([]types.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.codebase_id, s.title, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		FROM sessions s
		WHERE s.codebase_id = ?
		ORDER BY s.updated_at DESC, s.id`, codebaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []types.SessionSummary{}
	for rows.Next() {
		var sum types.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.CodebaseID, &sum.Title,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStorage) AppendMessage(ctx context.Context, sessionID string, msg types.Message) error {
	sources := "[]"
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode message sources: %w", err)
		}
		sources = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", msg.Timestamp, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, types.ErrSessionNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, sources, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(msg.Role), msg.Content, sources, msg.Timestamp); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStorage) SetSessionTitle(ctx context.Context, sessionID, title string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET title = ? WHERE id = ?", title, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, types.ErrSessionNotFound)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", id, types.ErrSessionNotFound)
	}
	return nil
}
