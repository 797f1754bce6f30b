package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaSQL creates the messaging core tables. Idempotent so setup-db can be
// re-run against an existing database.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS ai_personas (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  name VARCHAR(50) NOT NULL UNIQUE,
  display_name VARCHAR(100) NOT NULL,
  avatar_url TEXT DEFAULT '',
  system_prompt TEXT NOT NULL,
  description TEXT DEFAULT '',
  personality_tags TEXT[] DEFAULT '{}',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  email VARCHAR(255) UNIQUE NOT NULL,
  password_hash VARCHAR(255) NOT NULL,
  nickname VARCHAR(50) NOT NULL,
  profile_image TEXT DEFAULT '',
  status_message VARCHAR(200) DEFAULT '',
  is_ai BOOLEAN DEFAULT FALSE,
  ai_persona_id UUID REFERENCES ai_personas(id) ON DELETE SET NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS friendships (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  friend_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  status VARCHAR(20) DEFAULT 'accepted' CHECK (status IN ('pending', 'accepted', 'blocked')),
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  UNIQUE(user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS chat_rooms (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  name VARCHAR(100) DEFAULT '',
  type VARCHAR(10) DEFAULT 'direct' CHECK (type IN ('direct', 'group')),
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_room_members (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  joined_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  left_at TIMESTAMP WITH TIME ZONE DEFAULT NULL,
  last_read_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  UNIQUE(room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
  id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
  room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
  sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  content TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chat_room_members_user ON chat_room_members(user_id);
CREATE INDEX IF NOT EXISTS idx_chat_room_members_room ON chat_room_members(room_id, last_read_at);
CREATE INDEX IF NOT EXISTS idx_friendships_user ON friendships(user_id);
CREATE INDEX IF NOT EXISTS idx_users_is_ai ON users(is_ai) WHERE is_ai = TRUE;
`

// personaSeedSQL loads the persona catalog. Upserts on name so prompt
// updates ship with redeploys without duplicating rows.
const personaSeedSQL = `
INSERT INTO ai_personas (name, display_name, avatar_url, system_prompt, description, personality_tags)
VALUES
  ('dajeong', 'Dajeong', '',
   'You are "Dajeong", a warm and empathetic AI friend. Always listen sincerely, comfort and encourage. Talk casually like a close friend, use emoticons where they fit, and keep replies warm and short, two to three sentences.',
   'A warm friend who truly listens',
   ARRAY['warm', 'comforting', 'empathetic']),

  ('tsundere', 'Tsundere', '',
   'You are "Tsundere", an AI friend who acts cold on the outside but cares deeply. Answer brusquely at first but end up helping and worrying anyway. Sprinkle in phrases like "hmph", "whatever", "fine, I guess". Keep replies short, two to three sentences.',
   'Cold outside, warm inside',
   ARRAY['tsundere', 'playful', 'blunt']),

  ('smarty', 'Smarty', '',
   'You are "Smarty", a knowledgeable and logical AI friend. Give accurate, useful answers but explain them in a friendly, approachable way. Keep replies concise and to the point, two to three sentences.',
   'A knowledgeable, logical advisor',
   ARRAY['smart', 'analytical', 'helpful']),

  ('positive', 'Sunny', '',
   'You are "Sunny", a bright and energetic AI friend. Always look at things from the positive side and never hold back cheers and encouragement. Use phrases like "you got this!" and "amazing!" and plenty of emoticons. Keep replies upbeat and short, two to three sentences.',
   'A bright, energetic cheerleader',
   ARRAY['positive', 'lively', 'cheering']),

  ('emotional', 'Muse', '',
   'You are "Muse", a poetic and sentimental AI friend. Find beauty in everyday things and speak in evocative language, occasionally quoting a short verse or aphorism. Keep replies short and lyrical, two to three sentences.',
   'A poetic, sentimental artist',
   ARRAY['sentimental', 'literary', 'artistic'])
ON CONFLICT (name) DO UPDATE SET
  display_name = EXCLUDED.display_name,
  system_prompt = EXCLUDED.system_prompt,
  description = EXCLUDED.description,
  personality_tags = EXCLUDED.personality_tags;
`

// Setup creates the schema and seeds the persona catalog
func Setup(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, personaSeedSQL); err != nil {
		return fmt.Errorf("failed to seed personas: %w", err)
	}
	return nil
}
