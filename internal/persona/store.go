package persona

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore implements Store over the shared Postgres handle
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL-backed responder store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// BotPersona resolves the persona template backing a bot user
func (s *SQLStore) BotPersona(ctx context.Context, botUserID string) (*BotPersona, error) {
	var p BotPersona
	err := s.db.QueryRowContext(ctx, `
		SELECT ap.system_prompt, ap.display_name
		FROM users u
		JOIN ai_personas ap ON ap.id = u.ai_persona_id
		WHERE u.id = $1 AND u.is_ai = TRUE
	`, botUserID).Scan(&p.SystemPrompt, &p.DisplayName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no persona for bot user %s", botUserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot persona: %w", err)
	}
	return &p, nil
}

// RecentMessages returns the room's most recent messages, oldest-first
func (s *SQLStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]HistoryMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, content
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []HistoryMessage
	for rows.Next() {
		var m HistoryMessage
		if err := rows.Scan(&m.SenderID, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// Query ordered newest-first for the LIMIT; the provider wants
	// chronological order.
	history := make([]HistoryMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		history = append(history, newestFirst[i])
	}
	return history, nil
}

// MarkBotRead advances the bot's read cursor to now. GREATEST keeps the
// cursor monotone even across skewed pool connections.
func (s *SQLStore) MarkBotRead(ctx context.Context, roomID, botUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_room_members
		SET last_read_at = GREATEST(last_read_at, NOW())
		WHERE room_id = $1 AND user_id = $2
	`, roomID, botUserID)
	if err != nil {
		return fmt.Errorf("failed to mark bot read: %w", err)
	}
	return nil
}

// AppendMessage persists the bot's reply
func (s *SQLStore) AppendMessage(ctx context.Context, roomID, botUserID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, content) VALUES ($1, $2, $3)
	`, roomID, botUserID, content)
	if err != nil {
		return fmt.Errorf("failed to insert bot message: %w", err)
	}
	return nil
}
