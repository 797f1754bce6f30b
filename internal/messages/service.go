// Package messages implements the message store and read tracker: ordered
// append, cursor pagination, per-message unread accounting, and the trigger
// that hands human messages to the persona responder.
package messages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokka/internal/errs"
	"github.com/tokka/pkg/models"
)

// Pagination bounds
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// BotResponder triggers persona reply generation. The send request waits on
// it up to the configured window; a slow pipeline is detached, not
// cancelled.
type BotResponder interface {
	RespondWithin(wait time.Duration, roomID, botUserID string)
}

// Page is a page of messages plus the pagination signal
type Page struct {
	Messages []models.RoomMessage
	HasMore  bool
}

// Service handles message operations
type Service struct {
	db        *sql.DB
	responder BotResponder
	replyWait time.Duration
}

// NewService creates a new messages service. responder may be nil when no
// completion provider is configured; sends then skip the trigger entirely.
func NewService(db *sql.DB, responder BotResponder, replyWait time.Duration) *Service {
	return &Service{
		db:        db,
		responder: responder,
		replyWait: replyWait,
	}
}

// List returns messages strictly older than the cursor (when given),
// oldest-first, each annotated with its unread count. HasMore signals that
// another page may exist.
func (s *Service) List(ctx context.Context, userID, roomID string, before *time.Time, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	active, err := s.isActiveMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errs.New(errs.ErrForbidden, "you do not have access to this room")
	}

	// Per-message unread count: active members minus active members whose
	// read cursor has reached the message.
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.created_at,
		       u.nickname, u.profile_image, u.is_ai,
		       (
		           (SELECT COUNT(*) FROM chat_room_members WHERE room_id = m.room_id AND left_at IS NULL)
		           -
		           (SELECT COUNT(*) FROM chat_room_members WHERE room_id = m.room_id AND left_at IS NULL AND last_read_at >= m.created_at)
		       )::int
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1`
	args := []interface{}{roomID}
	if before != nil {
		query += ` AND m.created_at < $2
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`
		args = append(args, *before, limit)
	} else {
		query += `
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	newestFirst := []models.RoomMessage{}
	for rows.Next() {
		var m models.RoomMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt,
			&m.SenderNickname, &m.SenderProfileImage, &m.SenderIsAI, &m.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// Queried newest-first for the LIMIT; respond oldest-first
	page := &Page{
		Messages: make([]models.RoomMessage, 0, len(newestFirst)),
		HasMore:  len(newestFirst) == limit,
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, newestFirst[i])
	}
	return page, nil
}

// Send appends a message and, for human senders in rooms with an active bot
// member, triggers the persona responder. The returned message is always the
// sender's own; a bot reply, if any, arrives as a separate message on a
// later fetch.
func (s *Service) Send(ctx context.Context, userID, roomID, content string) (*models.RoomMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.New(errs.ErrValidation, "message content is required")
	}

	active, err := s.isActiveMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errs.New(errs.ErrForbidden, "you cannot send messages to this room")
	}

	var msg models.RoomMessage
	err = s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO messages (room_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, room_id, sender_id, content, created_at
		)
		SELECT i.id, i.room_id, i.sender_id, i.content, i.created_at,
		       u.nickname, u.profile_image, u.is_ai
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`, roomID, userID, content).Scan(&msg.ID, &msg.RoomID, &msg.SenderID,
		&msg.Content, &msg.CreatedAt,
		&msg.SenderNickname, &msg.SenderProfileImage, &msg.SenderIsAI)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	// The sender counts as having read their own message
	var activeCount int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM chat_room_members WHERE room_id = $1 AND left_at IS NULL
	`, roomID).Scan(&activeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	msg.UnreadCount = activeCount - 1
	if msg.UnreadCount < 0 {
		msg.UnreadCount = 0
	}

	if !msg.SenderIsAI && s.responder != nil {
		botID, err := s.activeBotMember(ctx, roomID)
		if err != nil {
			// Best-effort enrichment of an already-successful send
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to look up bot member")
		} else if botID != "" {
			s.responder.RespondWithin(s.replyWait, roomID, botID)
		}
	}

	return &msg, nil
}

// activeBotMember returns the room's single active bot member, or "" when
// there is none. The exclusivity invariant makes more than one unreachable,
// but LIMIT 1 keeps "at most one bot responds" true regardless.
func (s *Service) activeBotMember(ctx context.Context, roomID string) (string, error) {
	var botID string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id
		FROM chat_room_members crm
		JOIN users u ON u.id = crm.user_id
		WHERE crm.room_id = $1 AND crm.left_at IS NULL AND u.is_ai = TRUE
		LIMIT 1
	`, roomID).Scan(&botID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find bot member: %w", err)
	}
	return botID, nil
}

func (s *Service) isActiveMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_room_members
			WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
		)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}
