// Package friends implements the friendship graph: bidirectional accepted
// edges, unilateral blocks, and materialization of per-owner AI friends from
// the persona catalog.
package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/tokka/internal/errs"
	"github.com/tokka/pkg/models"
)

// Service handles friendship graph operations
type Service struct {
	db *sql.DB
}

// NewService creates a new friends service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ListFriends returns the owner's accepted friends, bots last, then by nickname
func (s *Service) ListFriends(ctx context.Context, ownerID string) ([]models.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.nickname, u.profile_image, u.status_message,
		       u.is_ai, u.ai_persona_id, f.status, f.created_at
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1 AND f.status = 'accepted'
		ORDER BY u.is_ai ASC, u.nickname ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	return scanFriends(rows)
}

// ListBlocked returns the users the owner has blocked, most recent first
func (s *Service) ListBlocked(ctx context.Context, ownerID string) ([]models.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.nickname, u.profile_image, u.status_message,
		       u.is_ai, u.ai_persona_id, f.status, f.created_at
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1 AND f.status = 'blocked'
		ORDER BY f.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	defer rows.Close()

	return scanFriends(rows)
}

func scanFriends(rows *sql.Rows) ([]models.Friend, error) {
	friends := []models.Friend{}
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.ID, &f.Email, &f.Nickname, &f.ProfileImage,
			&f.StatusMessage, &f.IsAI, &f.AIPersonaID, &f.Status, &f.FriendSince); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read friends: %w", err)
	}
	return friends, nil
}

// AddFriend creates an accepted friendship in both directions. Blocking
// state is only checked on the owner's own edge, so a blocked party can
// still re-add the blocker.
func (s *Service) AddFriend(ctx context.Context, ownerID, friendID string) (*models.Friend, error) {
	if ownerID == friendID {
		return nil, errs.New(errs.ErrSelfReference, "you cannot add yourself as a friend")
	}

	var friend models.Friend
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, nickname, profile_image, status_message, is_ai, ai_persona_id
		FROM users WHERE id = $1
	`, friendID).Scan(&friend.ID, &friend.Email, &friend.Nickname,
		&friend.ProfileImage, &friend.StatusMessage, &friend.IsAI, &friend.AIPersonaID)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	var status string
	err = s.db.QueryRowContext(ctx, `
		SELECT status FROM friendships WHERE user_id = $1 AND friend_id = $2
	`, ownerID, friendID).Scan(&status)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing friendship: %w", err)
	}
	if err == nil {
		switch status {
		case models.FriendStatusAccepted:
			return nil, errs.New(errs.ErrConflict, "already friends with this user")
		case models.FriendStatusBlocked:
			return nil, errs.New(errs.ErrAlreadyBlocked, "this user is blocked; unblock them before adding")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pair := range [][2]string{{ownerID, friendID}, {friendID, ownerID}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'accepted')
			ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'accepted'
		`, pair[0], pair[1]); err != nil {
			return nil, fmt.Errorf("failed to upsert friendship edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit friendship: %w", err)
	}

	friend.Status = models.FriendStatusAccepted
	return &friend, nil
}

// AddAIFriend materializes (or re-uses) the owner's bot user for a persona
// and creates a unilateral accepted edge owner -> bot. The bot never friends
// back. Repeated calls for the same owner and persona conflict instead of
// duplicating the bot.
func (s *Service) AddAIFriend(ctx context.Context, ownerID, personaID string) (*models.User, error) {
	var persona models.AIPersona
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, avatar_url, description
		FROM ai_personas WHERE id = $1
	`, personaID).Scan(&persona.ID, &persona.Name, &persona.DisplayName,
		&persona.AvatarURL, &persona.Description)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrNotFound, "persona not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up persona: %w", err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users u
			JOIN friendships f ON f.friend_id = u.id
			WHERE f.user_id = $1 AND u.is_ai = TRUE
			  AND u.ai_persona_id = $2 AND f.status = 'accepted'
		)
	`, ownerID, personaID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing ai friend: %w", err)
	}
	if exists {
		return nil, errs.New(errs.ErrConflict, "this AI friend has already been added")
	}

	// Deterministic per-owner identity: repeated adds resolve to the same
	// bot user even if a previous attempt created the user but failed
	// before the edge insert.
	botEmail := fmt.Sprintf("ai_%s_%s@tokka.ai", persona.Name, ownerID[:8])

	bot, err := s.findUserByEmail(ctx, botEmail)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up bot user: %w", err)
	}
	if bot == nil {
		bot, err = s.createBotUser(ctx, botEmail, &persona)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// Lost a race against a concurrent add; re-use the winner's row
				bot, err = s.findUserByEmail(ctx, botEmail)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create bot user: %w", err)
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'accepted')
		ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'accepted'
	`, ownerID, bot.ID); err != nil {
		return nil, fmt.Errorf("failed to create ai friendship: %w", err)
	}

	log.Info().
		Str("owner_id", ownerID).
		Str("persona", persona.Name).
		Str("bot_user_id", bot.ID).
		Msg("ai friend added")

	return bot, nil
}

func (s *Service) findUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, nickname, profile_image, status_message, is_ai, ai_persona_id
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Nickname, &u.ProfileImage,
		&u.StatusMessage, &u.IsAI, &u.AIPersonaID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) createBotUser(ctx context.Context, email string, persona *models.AIPersona) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, nickname, profile_image, status_message, is_ai, ai_persona_id)
		VALUES ($1, 'AI_NO_LOGIN', $2, $3, $4, TRUE, $5)
		RETURNING id, email, nickname, profile_image, status_message, is_ai, ai_persona_id
	`, email, persona.DisplayName, persona.AvatarURL, persona.Description, persona.ID).
		Scan(&u.ID, &u.Email, &u.Nickname, &u.ProfileImage,
			&u.StatusMessage, &u.IsAI, &u.AIPersonaID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RemoveFriend deletes both directed edges. Idempotent.
func (s *Service) RemoveFriend(ctx context.Context, ownerID, friendID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, ownerID, friendID)
	if err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}
	return nil
}

// Block upserts the owner's edge to blocked and deletes the reverse edge:
// the blocked party silently loses the relationship from their own list.
func (s *Service) Block(ctx context.Context, ownerID, friendID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'blocked')
		ON CONFLICT (user_id, friend_id) DO UPDATE SET status = 'blocked'
	`, ownerID, friendID); err != nil {
		return fmt.Errorf("failed to upsert block edge: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM friendships WHERE user_id = $1 AND friend_id = $2
	`, friendID, ownerID); err != nil {
		return fmt.Errorf("failed to delete reverse edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit block: %w", err)
	}
	return nil
}

// Unblock deletes the owner's blocked edge. The friendship is not restored;
// it must be re-established explicitly.
func (s *Service) Unblock(ctx context.Context, ownerID, friendID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM friendships
		WHERE user_id = $1 AND friend_id = $2 AND status = 'blocked'
	`, ownerID, friendID)
	if err != nil {
		return fmt.Errorf("failed to unblock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read unblock result: %w", err)
	}
	if affected == 0 {
		return errs.New(errs.ErrNotBlocked, "this user is not blocked")
	}
	return nil
}

// ListPersonas returns the persona catalog ordered by display name
func (s *Service) ListPersonas(ctx context.Context) ([]models.AIPersona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, avatar_url, description, personality_tags
		FROM ai_personas
		ORDER BY display_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	personas := []models.AIPersona{}
	for rows.Next() {
		var p models.AIPersona
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.AvatarURL,
			&p.Description, &p.PersonalityTags); err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read personas: %w", err)
	}
	return personas, nil
}
