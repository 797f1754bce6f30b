package users

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokka/internal/database"
	"github.com/tokka/internal/errs"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TOKKA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TOKKA_TEST_DATABASE_URL not set, skipping database integration test")
	}

	db, err := database.Open(url, database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Setup(context.Background(), db))
	_, err = db.Exec(`TRUNCATE messages, chat_room_members, chat_rooms, friendships, users CASCADE`)
	require.NoError(t, err)
	return db
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func TestRegisterAndLogin(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	email := uniqueEmail("alice")

	t.Run("Register", func(t *testing.T) {
		u, err := service.Register(ctx, email, "secret123", "alice")
		require.NoError(t, err)
		assert.Equal(t, email, u.Email)
		assert.Equal(t, "alice", u.Nickname)
		assert.False(t, u.IsAI)
		assert.Empty(t, u.PasswordHash, "hash must not be returned")
	})

	t.Run("DuplicateEmailConflicts", func(t *testing.T) {
		_, err := service.Register(ctx, email, "secret123", "alice2")
		assert.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("ShortPasswordRejected", func(t *testing.T) {
		_, err := service.Register(ctx, uniqueEmail("bob"), "short", "bob")
		assert.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("LoginWithCorrectPassword", func(t *testing.T) {
		u, err := service.Login(ctx, email, "secret123")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Nickname)
	})

	t.Run("LoginWithWrongPassword", func(t *testing.T) {
		_, err := service.Login(ctx, email, "wrong-password")
		assert.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("LoginWithUnknownEmail", func(t *testing.T) {
		_, err := service.Login(ctx, uniqueEmail("nobody"), "secret123")
		assert.ErrorIs(t, err, errs.ErrUnauthorized)
	})
}

func TestSearch(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	owner, err := service.Register(ctx, uniqueEmail("owner"), "secret123", "owner")
	require.NoError(t, err)
	mina, err := service.Register(ctx, uniqueEmail("mina"), "secret123", "mina")
	require.NoError(t, err)
	minji, err := service.Register(ctx, uniqueEmail("minji"), "secret123", "minji")
	require.NoError(t, err)
	_, err = service.Register(ctx, uniqueEmail("other"), "secret123", "sora")
	require.NoError(t, err)

	// One bot user, to check bots never show up as candidates
	_, err = db.Exec(`
		INSERT INTO users (email, password_hash, nickname, is_ai)
		VALUES ($1, 'AI_NO_LOGIN', 'Dajeong', TRUE)
	`, uniqueEmail("bot"))
	require.NoError(t, err)

	t.Run("SubstringMatch", func(t *testing.T) {
		results, err := service.Search(ctx, owner.ID, "min")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "mina", results[0].Nickname)
		assert.Equal(t, "minji", results[1].Nickname)
	})

	t.Run("EmptyQueryBrowses", func(t *testing.T) {
		results, err := service.Search(ctx, owner.ID, "")
		require.NoError(t, err)
		assert.Len(t, results, 3, "everyone except the owner and the bot")
	})

	t.Run("ExcludesExistingRelations", func(t *testing.T) {
		_, err := db.Exec(`
			INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'accepted'), ($2, $1, 'accepted')
		`, owner.ID, mina.ID)
		require.NoError(t, err)
		_, err = db.Exec(`
			INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'blocked')
		`, minji.ID, owner.ID)
		require.NoError(t, err)

		results, err := service.Search(ctx, owner.ID, "min")
		require.NoError(t, err)
		assert.Empty(t, results, "accepted and blocked relations are excluded in both directions")
	})
}

func TestUpdateProfile(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	u, err := service.Register(ctx, uniqueEmail("alice"), "secret123", "alice")
	require.NoError(t, err)

	t.Run("SparseUpdate", func(t *testing.T) {
		updated, err := service.UpdateProfile(ctx, u.ID, ProfileUpdate{
			StatusMessage: strPtr("brb lunch"),
		})
		require.NoError(t, err)
		assert.Equal(t, "brb lunch", updated.StatusMessage)
		assert.Equal(t, "alice", updated.Nickname, "unset fields stay untouched")
	})

	t.Run("EmptyUpdateRejected", func(t *testing.T) {
		_, err := service.UpdateProfile(ctx, u.ID, ProfileUpdate{})
		assert.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := service.UpdateProfile(ctx, "00000000-0000-0000-0000-000000000000", ProfileUpdate{
			Nickname: strPtr("ghost"),
		})
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})
}
