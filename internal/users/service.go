// Package users implements account registration, login, search, and profile
// updates. Credential handling lives here so the rest of the core only ever
// sees an authenticated user identity.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/tokka/internal/errs"
	"github.com/tokka/pkg/models"
)

// Search result caps: an empty query samples recent users, a non-empty query
// matches nickname/email substrings.
const (
	browseLimit = 50
	searchLimit = 20
)

// Service handles user account operations
type Service struct {
	db *sql.DB
}

// NewService creates a new users service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Register creates a new account and returns it
func (s *Service) Register(ctx context.Context, email, password, nickname string) (*models.User, error) {
	if email == "" || password == "" || nickname == "" {
		return nil, errs.New(errs.ErrValidation, "email, password and nickname are required")
	}
	if len(password) < 6 {
		return nil, errs.New(errs.ErrValidation, "password must be at least 6 characters")
	}

	var existingID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}
	if err == nil {
		return nil, errs.New(errs.ErrConflict, "this email is already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var u models.User
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, nickname)
		VALUES ($1, $2, $3)
		RETURNING id, email, nickname, profile_image, status_message, is_ai, created_at, updated_at
	`, email, string(hash), nickname).Scan(&u.ID, &u.Email, &u.Nickname,
		&u.ProfileImage, &u.StatusMessage, &u.IsAI, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Pre-check raced a concurrent registration
			return nil, errs.New(errs.ErrConflict, "this email is already in use")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &u, nil
}

// Login verifies credentials and returns the account
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, errs.New(errs.ErrValidation, "email and password are required")
	}

	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, nickname, profile_image, status_message, is_ai
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Nickname,
		&u.ProfileImage, &u.StatusMessage, &u.IsAI)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrUnauthorized, "email or password does not match")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errs.New(errs.ErrUnauthorized, "email or password does not match")
	}
	return &u, nil
}

// GetByID returns a user by id
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, nickname, profile_image, status_message, is_ai, ai_persona_id, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Nickname, &u.ProfileImage,
		&u.StatusMessage, &u.IsAI, &u.AIPersonaID, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// Search returns candidate friends for the owner: excludes the owner, bots,
// and anyone already accepted or blocked with the owner in either direction.
// An empty query returns a recency-ordered sample; otherwise a
// case-insensitive substring match on nickname and email, ordered by
// nickname.
func (s *Service) Search(ctx context.Context, ownerID, query string) ([]models.User, error) {
	const exclusions = `
		AND u.is_ai = FALSE
		AND u.id NOT IN (
			SELECT friend_id FROM friendships WHERE user_id = $1 AND status IN ('accepted', 'blocked')
			UNION
			SELECT user_id FROM friendships WHERE friend_id = $1 AND status IN ('accepted', 'blocked')
		)`

	var rows *sql.Rows
	var err error
	query = strings.TrimSpace(query)
	if query == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT u.id, u.email, u.nickname, u.profile_image, u.status_message
			FROM users u
			WHERE u.id != $1`+exclusions+`
			ORDER BY u.created_at DESC
			LIMIT `+fmt.Sprint(browseLimit), ownerID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT u.id, u.email, u.nickname, u.profile_image, u.status_message
			FROM users u
			WHERE u.id != $1 AND (u.nickname ILIKE $2 OR u.email ILIKE $2)`+exclusions+`
			ORDER BY u.nickname ASC
			LIMIT `+fmt.Sprint(searchLimit), ownerID, "%"+query+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Nickname, &u.ProfileImage, &u.StatusMessage); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

// ProfileUpdate is a sparse profile update: only non-nil fields are written
type ProfileUpdate struct {
	Nickname      *string `json:"nickname"`
	StatusMessage *string `json:"status_message"`
	ProfileImage  *string `json:"profile_image"`
}

// UpdateProfile applies a sparse update through the allow-listed column
// builder and returns the updated user
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.User, error) {
	b := newUpdateBuilder()
	b.Set("nickname", update.Nickname)
	b.Set("status_message", update.StatusMessage)
	b.Set("profile_image", update.ProfileImage)

	assignments, args, err := b.Build()
	if err != nil {
		return nil, errs.New(errs.ErrValidation, "nothing to update")
	}

	args = append(args, userID)
	var u models.User
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE users SET %s, updated_at = NOW() WHERE id = $%d
		RETURNING id, email, nickname, profile_image, status_message, is_ai, created_at, updated_at
	`, assignments, len(args)), args...).Scan(&u.ID, &u.Email, &u.Nickname,
		&u.ProfileImage, &u.StatusMessage, &u.IsAI, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &u, nil
}
