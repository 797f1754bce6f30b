package models

import (
	"time"

	"github.com/lib/pq"
)

// Friendship status values
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
	FriendStatusBlocked  = "blocked"
)

// Room type values
const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// User represents a registered account or a materialized AI persona instance
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Nickname      string    `json:"nickname"`
	ProfileImage  string    `json:"profile_image"`
	StatusMessage string    `json:"status_message"`
	IsAI          bool      `json:"is_ai"`
	AIPersonaID   *string   `json:"ai_persona_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PublicProfile is the subset of user fields safe to show other members
type PublicProfile struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	ProfileImage  string `json:"profile_image"`
	StatusMessage string `json:"status_message"`
	IsAI          bool   `json:"is_ai"`
}

// Friendship is a directed edge in the friendship graph.
// An accepted friendship is two edges, one per direction; a block is a
// single edge owned by the blocker.
type Friendship struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Friend is a friend-list row: the other user's profile plus edge metadata
type Friend struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Nickname      string    `json:"nickname"`
	ProfileImage  string    `json:"profile_image"`
	StatusMessage string    `json:"status_message"`
	IsAI          bool      `json:"is_ai"`
	AIPersonaID   *string   `json:"ai_persona_id,omitempty"`
	Status        string    `json:"status"`
	FriendSince   time.Time `json:"friend_since"`
}

// AIPersona is a catalog template for an automated participant.
// Seeded once by setup-db and read-only afterward. The system prompt is
// never sent to clients.
type AIPersona struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DisplayName     string         `json:"display_name"`
	AvatarURL       string         `json:"avatar_url"`
	SystemPrompt    string         `json:"-"`
	Description     string         `json:"description"`
	PersonalityTags pq.StringArray `json:"personality_tags"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ChatRoom is a direct (two members) or group (two or more) conversation
type ChatRoom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRoomMember ties a user to a room. LeftAt is a tombstone: a non-nil
// value marks a departed member kept around for unread accounting until the
// room is garbage-collected.
type ChatRoomMember struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	UserID     string     `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	LastReadAt time.Time  `json:"last_read_at"`
}

// RoomMember is a room-detail row: member profile plus join time
type RoomMember struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Nickname      string    `json:"nickname"`
	ProfileImage  string    `json:"profile_image"`
	StatusMessage string    `json:"status_message"`
	IsAI          bool      `json:"is_ai"`
	JoinedAt      time.Time `json:"joined_at"`
}

// RoomDetail is a room with its active members
type RoomDetail struct {
	ChatRoom
	Members []RoomMember `json:"members"`
}

// RoomSummary is a room-list row: the room annotated with its most recent
// message, active member count, the caller's unread count, and (for direct
// rooms) the other member's profile.
type RoomSummary struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	CreatedAt         time.Time      `json:"created_at"`
	LastMessage       *string        `json:"last_message"`
	LastMessageAt     *time.Time     `json:"last_message_at"`
	LastMessageSender *string        `json:"last_message_sender"`
	MemberCount       int            `json:"member_count"`
	UnreadCount       int            `json:"unread_count"`
	OtherUser         *PublicProfile `json:"other_user,omitempty"`
}

// Message is an immutable chat message. Ordering authority is CreatedAt
// with ID as the tie-break.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMessage is a message annotated with sender profile fields and the
// per-message unread count (active members whose read cursor has not passed
// the message yet).
type RoomMessage struct {
	Message
	SenderNickname     string `json:"sender_nickname"`
	SenderProfileImage string `json:"sender_profile_image"`
	SenderIsAI         bool   `json:"sender_is_ai"`
	UnreadCount        int    `json:"unread_count"`
}
