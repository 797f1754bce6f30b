// Package rooms implements the room and membership lifecycle: creation with
// direct-room dedup, invites, soft departures with garbage collection, and
// read-cursor tracking.
package rooms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/tokka/internal/errs"
	"github.com/tokka/pkg/models"
)

// DefaultGroupName is used when a group room is created without a name
const DefaultGroupName = "Group Chat"

// Service handles room and membership operations
type Service struct {
	db *sql.DB
}

// NewService creates a new rooms service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ListRooms returns the requester's active rooms annotated with the most
// recent message, active member count, unread count, and the direct-room
// counterpart's profile, ordered by last activity.
func (s *Service) ListRooms(ctx context.Context, userID string) ([]models.RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			cr.id, cr.name, cr.type, cr.created_at,
			m.content, m.created_at, sender.nickname,
			(SELECT COUNT(*) FROM chat_room_members WHERE room_id = cr.id AND left_at IS NULL)::int,
			(SELECT COUNT(*) FROM messages WHERE room_id = cr.id AND created_at > crm.last_read_at)::int,
			other_u.id, other_u.nickname, other_u.profile_image, other_u.status_message, other_u.is_ai
		FROM chat_rooms cr
		JOIN chat_room_members crm ON crm.room_id = cr.id
		LEFT JOIN LATERAL (
			SELECT content, created_at, sender_id
			FROM messages
			WHERE room_id = cr.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON true
		LEFT JOIN users sender ON sender.id = m.sender_id
		LEFT JOIN LATERAL (
			SELECT u.id, u.nickname, u.profile_image, u.status_message, u.is_ai
			FROM chat_room_members crm2
			JOIN users u ON u.id = crm2.user_id
			WHERE cr.type = 'direct' AND crm2.room_id = cr.id
			  AND crm2.user_id != $1 AND crm2.left_at IS NULL
			LIMIT 1
		) other_u ON true
		WHERE crm.user_id = $1 AND crm.left_at IS NULL
		ORDER BY COALESCE(m.created_at, cr.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	summaries := []models.RoomSummary{}
	for rows.Next() {
		var rs models.RoomSummary
		var otherID, otherNickname, otherImage, otherStatus sql.NullString
		var otherIsAI sql.NullBool
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Type, &rs.CreatedAt,
			&rs.LastMessage, &rs.LastMessageAt, &rs.LastMessageSender,
			&rs.MemberCount, &rs.UnreadCount,
			&otherID, &otherNickname, &otherImage, &otherStatus, &otherIsAI); err != nil {
			return nil, fmt.Errorf("failed to scan room summary: %w", err)
		}
		if otherID.Valid {
			rs.OtherUser = &models.PublicProfile{
				ID:            otherID.String,
				Nickname:      otherNickname.String,
				ProfileImage:  otherImage.String,
				StatusMessage: otherStatus.String,
				IsAI:          otherIsAI.Bool,
			}
		}
		summaries = append(summaries, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read room summaries: %w", err)
	}
	return summaries, nil
}

// CreateRoom creates a direct or group room for requester plus memberIDs.
// With exactly one other member, an existing direct room whose active
// membership is exactly the pair is returned instead of creating a
// duplicate; the second return value reports whether a room was created.
func (s *Service) CreateRoom(ctx context.Context, requesterID, name string, memberIDs []string) (*models.ChatRoom, bool, error) {
	if len(memberIDs) == 0 {
		return nil, false, errs.New(errs.ErrValidation, "select at least one member")
	}

	// The exclusivity invariant is over the whole membership, so the
	// requester counts toward the bot tally too.
	allIDs := append([]string{requesterID}, memberIDs...)
	var botCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM users WHERE id = ANY($1::uuid[]) AND is_ai = TRUE
	`, pq.Array(allIDs)).Scan(&botCount)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count bots: %w", err)
	}
	if botCount > 1 {
		return nil, false, errs.New(errs.ErrAIExclusivity, "a room may contain at most one AI friend")
	}

	if len(memberIDs) == 1 {
		existing, err := s.findDirectRoom(ctx, requesterID, memberIDs[0])
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	roomType := models.RoomTypeGroup
	roomName := name
	if len(memberIDs) == 1 {
		roomType = models.RoomTypeDirect
		roomName = ""
	} else if roomName == "" {
		roomName = DefaultGroupName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var room models.ChatRoom
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_rooms (name, type) VALUES ($1, $2)
		RETURNING id, name, type, created_at
	`, roomName, roomType).Scan(&room.ID, &room.Name, &room.Type, &room.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create room: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_room_members (room_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, room.ID, pq.Array(allIDs)); err != nil {
		return nil, false, fmt.Errorf("failed to insert members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit room: %w", err)
	}

	log.Info().
		Str("room_id", room.ID).
		Str("type", room.Type).
		Int("members", len(allIDs)).
		Msg("room created")

	return &room, true, nil
}

// findDirectRoom looks for a direct room whose active membership is exactly
// {a, b}. Rooms one party has left are not dedup candidates.
func (s *Service) findDirectRoom(ctx context.Context, a, b string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.QueryRowContext(ctx, `
		SELECT cr.id, cr.name, cr.type, cr.created_at
		FROM chat_rooms cr
		WHERE cr.type = 'direct'
		AND EXISTS (
			SELECT 1 FROM chat_room_members WHERE room_id = cr.id AND user_id = $1 AND left_at IS NULL
		)
		AND EXISTS (
			SELECT 1 FROM chat_room_members WHERE room_id = cr.id AND user_id = $2 AND left_at IS NULL
		)
		AND (SELECT COUNT(*) FROM chat_room_members WHERE room_id = cr.id AND left_at IS NULL) = 2
		LIMIT 1
	`, a, b).Scan(&room.ID, &room.Name, &room.Type, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find direct room: %w", err)
	}
	return &room, nil
}

// GetRoomDetail returns the room and its active members, join order first
func (s *Service) GetRoomDetail(ctx context.Context, userID, roomID string) (*models.RoomDetail, error) {
	active, err := s.isActiveMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errs.New(errs.ErrForbidden, "you do not have access to this room")
	}

	var detail models.RoomDetail
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM chat_rooms WHERE id = $1
	`, roomID).Scan(&detail.ID, &detail.Name, &detail.Type, &detail.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrNotFound, "room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.nickname, u.profile_image, u.status_message, u.is_ai, crm.joined_at
		FROM chat_room_members crm
		JOIN users u ON u.id = crm.user_id
		WHERE crm.room_id = $1 AND crm.left_at IS NULL
		ORDER BY crm.joined_at ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	detail.Members = []models.RoomMember{}
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.ID, &m.Email, &m.Nickname, &m.ProfileImage,
			&m.StatusMessage, &m.IsAI, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		detail.Members = append(detail.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	return &detail, nil
}

// Invite adds members to a group room. Idempotent for active members;
// members who previously left re-join with their tombstone cleared.
func (s *Service) Invite(ctx context.Context, requesterID, roomID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return errs.New(errs.ErrValidation, "select members to invite")
	}

	active, err := s.isActiveMember(ctx, roomID, requesterID)
	if err != nil {
		return err
	}
	if !active {
		return errs.New(errs.ErrForbidden, "you are not a member of this room")
	}

	var roomType string
	err = s.db.QueryRowContext(ctx, `
		SELECT type FROM chat_rooms WHERE id = $1
	`, roomID).Scan(&roomType)
	if err == sql.ErrNoRows {
		return errs.New(errs.ErrNotFound, "room not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load room type: %w", err)
	}
	if roomType != models.RoomTypeGroup {
		return errs.New(errs.ErrValidation, "members can only be invited to group rooms")
	}

	// Exclusivity re-check at every membership change: invited bots plus
	// bots already active must stay at most one.
	var invitedBots int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM users WHERE id = ANY($1::uuid[]) AND is_ai = TRUE
	`, pq.Array(memberIDs)).Scan(&invitedBots)
	if err != nil {
		return fmt.Errorf("failed to count invited bots: %w", err)
	}
	if invitedBots > 0 {
		var activeBots int
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*)::int
			FROM chat_room_members crm
			JOIN users u ON u.id = crm.user_id
			WHERE crm.room_id = $1 AND crm.left_at IS NULL AND u.is_ai = TRUE
		`, roomID).Scan(&activeBots)
		if err != nil {
			return fmt.Errorf("failed to count room bots: %w", err)
		}
		if activeBots+invitedBots > 1 {
			return errs.New(errs.ErrAIExclusivity, "a room may contain at most one AI friend")
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_room_members (room_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT (room_id, user_id) DO UPDATE SET left_at = NULL
	`, roomID, pq.Array(memberIDs)); err != nil {
		return fmt.Errorf("failed to add members: %w", err)
	}

	return nil
}

// Leave tombstones the requester's membership. When no active member
// remains, the room, its memberships, and all of its messages are purged in
// the same transaction; the history is unrecoverable afterward.
func (s *Service) Leave(ctx context.Context, userID, roomID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var memberID string
	err = tx.QueryRowContext(ctx, `
		UPDATE chat_room_members SET left_at = NOW()
		WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
		RETURNING id
	`, roomID, userID).Scan(&memberID)
	if err == sql.ErrNoRows {
		return errs.New(errs.ErrValidation, "you already left this room or were never a member")
	}
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM chat_room_members WHERE room_id = $1 AND left_at IS NULL
	`, roomID).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to count remaining members: %w", err)
	}

	if remaining == 0 {
		for _, stmt := range []string{
			`DELETE FROM messages WHERE room_id = $1`,
			`DELETE FROM chat_room_members WHERE room_id = $1`,
			`DELETE FROM chat_rooms WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, roomID); err != nil {
				return fmt.Errorf("failed to purge room: %w", err)
			}
		}
		log.Info().Str("room_id", roomID).Msg("last member left, room purged")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leave: %w", err)
	}
	return nil
}

// MarkRead advances the requester's read cursor to now. GREATEST keeps the
// cursor monotone even across skewed pool connections.
func (s *Service) MarkRead(ctx context.Context, userID, roomID string) (time.Time, error) {
	var lastReadAt time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE chat_room_members
		SET last_read_at = GREATEST(last_read_at, NOW())
		WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
		RETURNING last_read_at
	`, roomID, userID).Scan(&lastReadAt)
	if err == sql.ErrNoRows {
		return time.Time{}, errs.New(errs.ErrForbidden, "you are not a member of this room")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark read: %w", err)
	}
	return lastReadAt, nil
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
