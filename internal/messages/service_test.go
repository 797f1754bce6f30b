package messages

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
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

func createTestUser(t *testing.T, db *sql.DB, nickname string, isAI bool) string {
	t.Helper()
	var id string
	email := fmt.Sprintf("%s-%d@example.com", nickname, time.Now().UnixNano())
	err := db.QueryRow(`
		INSERT INTO users (email, password_hash, nickname, is_ai) VALUES ($1, 'x', $2, $3) RETURNING id
	`, email, nickname, isAI).Scan(&id)
	require.NoError(t, err)
	return id
}

func createRoomWithMembers(t *testing.T, db *sql.DB, roomType string, memberIDs ...string) string {
	t.Helper()
	var roomID string
	err := db.QueryRow(`
		INSERT INTO chat_rooms (name, type) VALUES ('', $1) RETURNING id
	`, roomType).Scan(&roomID)
	require.NoError(t, err)

	for _, memberID := range memberIDs {
		_, err := db.Exec(`
			INSERT INTO chat_room_members (room_id, user_id) VALUES ($1, $2)
		`, roomID, memberID)
		require.NoError(t, err)
	}
	return roomID
}

func insertMessageAt(t *testing.T, db *sql.DB, roomID, senderID, content string, at time.Time) time.Time {
	t.Helper()
	var createdAt time.Time
	err := db.QueryRow(`
		INSERT INTO messages (room_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4) RETURNING created_at
	`, roomID, senderID, content, at).Scan(&createdAt)
	require.NoError(t, err)
	return createdAt
}

func markAllRead(t *testing.T, db *sql.DB, roomID, userID string) {
	t.Helper()
	_, err := db.Exec(`
		UPDATE chat_room_members SET last_read_at = GREATEST(last_read_at, NOW())
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	require.NoError(t, err)
}

type responderCall struct {
	wait   time.Duration
	roomID string
	botID  string
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []responderCall
}

func (r *fakeResponder) RespondWithin(wait time.Duration, roomID, botUserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, responderCall{wait: wait, roomID: roomID, botID: botUserID})
}

func (r *fakeResponder) Calls() []responderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]responderCall(nil), r.calls...)
}

func TestSend(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db, nil, 0)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", false)
	bob := createTestUser(t, db, "bob", false)
	room := createRoomWithMembers(t, db, "direct", alice, bob)

	t.Run("EmptyContentRejected", func(t *testing.T) {
		for _, content := range []string{"", "   ", "\n\t"} {
			_, err := service.Send(ctx, alice, room, content)
			assert.ErrorIs(t, err, errs.ErrValidation, "content %q must be rejected", content)
		}
	})

	t.Run("NonMemberRejected", func(t *testing.T) {
		carol := createTestUser(t, db, "carol", false)
		_, err := service.Send(ctx, carol, room, "let me in")
		assert.ErrorIs(t, err, errs.ErrForbidden)
	})

	t.Run("SendReturnsAnnotatedMessage", func(t *testing.T) {
		msg, err := service.Send(ctx, alice, room, "  hello bob  ")
		require.NoError(t, err)
		assert.Equal(t, "hello bob", msg.Content, "content is trimmed")
		assert.Equal(t, alice, msg.SenderID)
		assert.Equal(t, "alice", msg.SenderNickname)
		assert.False(t, msg.SenderIsAI)
		assert.Equal(t, 1, msg.UnreadCount, "everyone but the sender is unread")
	})
}

func TestUnreadLifecycle(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db, nil, 0)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", false)
	bob := createTestUser(t, db, "bob", false)
	room := createRoomWithMembers(t, db, "direct", alice, bob)

	_, err := service.Send(ctx, alice, room, "did you see this?")
	require.NoError(t, err)

	t.Run("UnreadForTheOtherMember", func(t *testing.T) {
		page, err := service.List(ctx, alice, room, nil, 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, 1, page.Messages[0].UnreadCount)
	})

	t.Run("ReadCursorClearsUnread", func(t *testing.T) {
		markAllRead(t, db, room, bob)

		page, err := service.List(ctx, alice, room, nil, 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Zero(t, page.Messages[0].UnreadCount)
	})
}

func TestList(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db, nil, 0)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", false)
	bob := createTestUser(t, db, "bob", false)
	room := createRoomWithMembers(t, db, "direct", alice, bob)

	base := time.Now().Add(-time.Hour)
	var createdAts []time.Time
	for i := 0; i < 5; i++ {
		at := insertMessageAt(t, db, room, alice, fmt.Sprintf("message %d", i+1), base.Add(time.Duration(i)*time.Minute))
		createdAts = append(createdAts, at)
	}

	t.Run("NonMemberRejected", func(t *testing.T) {
		carol := createTestUser(t, db, "carol", false)
		_, err := service.List(ctx, carol, room, nil, 0)
		assert.ErrorIs(t, err, errs.ErrForbidden)
	})

	t.Run("NewestPageOldestFirst", func(t *testing.T) {
		page, err := service.List(ctx, alice, room, nil, 2)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "message 4", page.Messages[0].Content)
		assert.Equal(t, "message 5", page.Messages[1].Content)
	})

	t.Run("CursorIsExclusive", func(t *testing.T) {
		page, err := service.List(ctx, alice, room, &createdAts[3], 2)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.Equal(t, "message 2", page.Messages[0].Content)
		assert.Equal(t, "message 3", page.Messages[1].Content)
	})

	t.Run("ExhaustedCursor", func(t *testing.T) {
		page, err := service.List(ctx, alice, room, &createdAts[0], 2)
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.False(t, page.HasMore)
	})

	t.Run("LimitIsClamped", func(t *testing.T) {
		page, err := service.List(ctx, alice, room, nil, MaxLimit+500)
		require.NoError(t, err)
		assert.Len(t, page.Messages, 5)
		assert.False(t, page.HasMore)
	})
}

func TestSendTriggersResponder(t *testing.T) {
	db := openTestDB(t)
	responder := &fakeResponder{}
	service := NewService(db, responder, 10*time.Second)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", false)
	bot := createTestUser(t, db, "dajeong-bot", true)
	botRoom := createRoomWithMembers(t, db, "direct", alice, bot)

	bob := createTestUser(t, db, "bob", false)
	humanRoom := createRoomWithMembers(t, db, "direct", alice, bob)

	t.Run("HumanMessageTriggersBot", func(t *testing.T) {
		_, err := service.Send(ctx, alice, botRoom, "hi dajeong")
		require.NoError(t, err)

		calls := responder.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, botRoom, calls[0].roomID)
		assert.Equal(t, bot, calls[0].botID)
		assert.Equal(t, 10*time.Second, calls[0].wait)
	})

	t.Run("BotSenderDoesNotRetrigger", func(t *testing.T) {
		_, err := service.Send(ctx, bot, botRoom, "hello!")
		require.NoError(t, err)
		assert.Len(t, responder.Calls(), 1, "bot replies must not trigger another reply")
	})

	t.Run("RoomWithoutBotDoesNotTrigger", func(t *testing.T) {
		_, err := service.Send(ctx, alice, humanRoom, "hi bob")
		require.NoError(t, err)
		assert.Len(t, responder.Calls(), 1)
	})
}

func TestSendWithoutResponderConfigured(t *testing.T) {
	db := openTestDB(t)
	service := NewService(db, nil, 0)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", false)
	bot := createTestUser(t, db, "dajeong-bot", true)
	room := createRoomWithMembers(t, db, "direct", alice, bot)

	msg, err := service.Send(ctx, alice, room, "anyone home?")
	require.NoError(t, err)
	assert.Equal(t, "anyone home?", msg.Content)
}
