package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sessionCols is the standard SELECT column list for scanSessions. The
// message count is computed per row; sessions are small in number.
const sessionCols = `s.id, s.title, s.model_name, s.created_at, s.updated_at,
	(SELECT count(*) FROM messages m WHERE m.session_id = s.id) AS message_count`

// messageCols is the standard SELECT column list for scanMessages.
const messageCols = `id, session_id, role, content, sequence_number, created_at`

// Store manages conversation sessions backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title, modelName string) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (title, model_name)
		 VALUES ($1, $2)
		 RETURNING id, title, model_name, created_at, updated_at`,
		title, modelName,
	).Scan(&sess.ID, &sess.Title, &sess.ModelName, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Session retrieves a session by ID.
// Returns ErrSessionNotFound if it does not exist.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions s WHERE s.id = $1`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.ModelName, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions lists sessions ordered by updated_at descending.
func (s *Store) Sessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionCols+`
		 FROM sessions s
		 ORDER BY s.updated_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// DeleteSession deletes a session and all its messages (CASCADE).
// Returns ErrSessionNotFound if it does not exist.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// SetTitle updates the session title.
// Returns ErrSessionNotFound if the session does not exist.
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("setting title for session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// AddMessages appends messages to a session, assigning consecutive
// sequence numbers. The whole batch is one transaction: the session row
// is locked (SELECT ... FOR UPDATE) so concurrent appends cannot race on
// sequence numbers, then messages are inserted and the session's
// updated_at is bumped.
//
// Returns ErrSessionNotFound if the session does not exist and
// ErrInvalidRole if a message's role is not user/assistant.
func (s *Store) AddMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, msg := range messages {
		if msg == nil || msg.Content == "" {
			return fmt.Errorf("message %d is empty", i)
		}
		if !validRole(msg.Role) {
			return fmt.Errorf("%w: %q at index %d", ErrInvalidRole, msg.Role, i)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Lock the session row. Also serves as the existence check.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, msg := range messages {
		seq := maxSeq + int64(i) + 1
		err = tx.QueryRow(ctx,
			`INSERT INTO messages (session_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			sessionID, msg.Role, msg.Content, seq,
		).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
		msg.SessionID = sessionID
		msg.SequenceNumber = seq
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing message batch: %w", err)
	}

	s.logger.Debug("added messages", "session_id", sessionID, "count", len(messages))
	return nil
}

// Messages retrieves messages for a session ordered by sequence number
// ascending, with pagination.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY sequence_number ASC
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("getting messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// RecentMessages returns the last n messages of a session in
// chronological order. This is the conversation window handed to the
// prompt builder.
func (s *Store) RecentMessages(ctx context.Context, sessionID uuid.UUID, n int32) ([]*Message, error) {
	if n <= 0 {
		return []*Message{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY sequence_number DESC
		 LIMIT $2`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("getting recent messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query returns newest-first; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Counts returns the total number of sessions and messages.
// Used by the stats endpoint.
func (s *Store) Counts(ctx context.Context) (sessions, messages int64, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM sessions), (SELECT count(*) FROM messages)`,
	).Scan(&sessions, &messages)
	if err != nil {
		return 0, 0, fmt.Errorf("counting sessions: %w", err)
	}
	return sessions, messages, nil
}

// scanSessions reads Session structs from pgx.Rows (standard column set).
func scanSessions(rows pgx.Rows) ([]*Session, error) {
	sessions := []*Session{}
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(
			&sess.ID, &sess.Title, &sess.ModelName,
			&sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// scanMessages reads Message structs from pgx.Rows (standard column set).
func scanMessages(rows pgx.Rows) ([]*Message, error) {
	messages := []*Message{}
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.SequenceNumber, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
