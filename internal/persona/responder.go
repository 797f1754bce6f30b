// Package persona implements the AI persona responder: the bounded,
// best-effort pipeline that generates one automated reply per human message
// in a room with an active bot member.
package persona

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokka/internal/ai"
	"github.com/tokka/internal/retry"
)

// HistoryMessage is one entry of the conversation window fed to the provider
type HistoryMessage struct {
	SenderID string
	Content  string
}

// BotPersona is the resolved persona template of a bot user
type BotPersona struct {
	SystemPrompt string
	DisplayName  string
}

// Store is the slice of storage the responder needs. Implemented by the SQL
// store in this package; faked in tests.
type Store interface {
	// BotPersona resolves the persona template backing a bot user
	BotPersona(ctx context.Context, botUserID string) (*BotPersona, error)

	// RecentMessages returns the room's most recent messages, oldest-first
	RecentMessages(ctx context.Context, roomID string, limit int) ([]HistoryMessage, error)

	// MarkBotRead advances the bot's read cursor to now
	MarkBotRead(ctx context.Context, roomID, botUserID string) error

	// AppendMessage persists the bot's reply
	AppendMessage(ctx context.Context, roomID, botUserID, content string) error
}

// Options tune the responder's pacing and context window
type Options struct {
	MinDelay     time.Duration      // artificial delay floor before the provider call
	MaxDelay     time.Duration      // artificial delay ceiling
	HistoryLimit int                // conversation window size
	Retry        *retry.RetryConfig // nil means retry.LLMRetryConfig
}

// DefaultOptions match the product behavior: a 1-2s pause so replies do not
// land instantaneously, over the last 10 messages.
func DefaultOptions() Options {
	return Options{
		MinDelay:     1 * time.Second,
		MaxDelay:     2 * time.Second,
		HistoryLimit: 10,
	}
}

// Responder generates persona replies. All of its failures are absorbed and
// logged; nothing in this package may surface an error to the message sender.
type Responder struct {
	store    Store
	provider ai.Provider
	opts     Options
	retryCfg retry.RetryConfig
}

// NewResponder creates a responder over the given store and provider
func NewResponder(store Store, provider ai.Provider, opts Options) *Responder {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	retryCfg := retry.LLMRetryConfig()
	if opts.Retry != nil {
		retryCfg = *opts.Retry
	}
	return &Responder{
		store:    store,
		provider: provider,
		opts:     opts,
		retryCfg: retryCfg,
	}
}

// RespondWithin triggers reply generation and waits for it at most wait.
// When the deadline wins, the pipeline is detached, not cancelled: it keeps
// running on a background context and still persists its reply, so the
// client sees it on a later fetch.
func (r *Responder) RespondWithin(wait time.Duration, roomID, botUserID string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.respond(context.Background(), roomID, botUserID)
	}()

	select {
	case <-done:
	case <-time.After(wait):
		log.Info().
			Str("room_id", roomID).
			Str("bot_user_id", botUserID).
			Dur("wait", wait).
			Msg("persona reply still generating, detaching from send request")
	}
}

// respond runs the full pipeline. Every failure path logs and returns.
func (r *Responder) respond(ctx context.Context, roomID, botUserID string) {
	persona, err := r.store.BotPersona(ctx, botUserID)
	if err != nil {
		log.Error().Err(err).
			Str("bot_user_id", botUserID).
			Msg("failed to resolve bot persona, skipping reply")
		return
	}

	history, err := r.store.RecentMessages(ctx, roomID, r.opts.HistoryLimit)
	if err != nil {
		log.Error().Err(err).
			Str("room_id", roomID).
			Msg("failed to load conversation window, skipping reply")
		return
	}

	req := ai.CompletionRequest{
		SystemPrompt: persona.SystemPrompt,
		Turns:        buildTurns(botUserID, history),
	}

	// A reply that lands the same instant as the triggering message reads
	// as robotic, so pause briefly before calling the provider.
	r.sleep()

	var reply string
	result := retry.RetryWithBackoff(ctx, r.retryCfg, func() error {
		var cerr error
		reply, cerr = r.provider.Complete(ctx, req)
		return cerr
	})
	if !result.Success {
		log.Error().Err(result.LastError).
			Str("room_id", roomID).
			Int("attempts", result.Attempts).
			Msg("completion provider failed, skipping reply")
		return
	}
	if reply == "" {
		log.Warn().
			Str("room_id", roomID).
			Msg("completion provider returned empty reply, skipping")
		return
	}

	// The bot "reads" the room before "writing" so its own cursor never
	// counts against unread for messages it just answered.
	if err := r.store.MarkBotRead(ctx, roomID, botUserID); err != nil {
		log.Error().Err(err).
			Str("room_id", roomID).
			Msg("failed to advance bot read cursor")
		return
	}

	if err := r.store.AppendMessage(ctx, roomID, botUserID, reply); err != nil {
		log.Error().Err(err).
			Str("room_id", roomID).
			Msg("failed to persist persona reply")
		return
	}

	log.Info().
		Str("room_id", roomID).
		Str("persona", persona.DisplayName).
		Int("reply_len", len(reply)).
		Msg("persona reply persisted")
}

func (r *Responder) sleep() {
	if r.opts.MaxDelay <= 0 {
		return
	}
	delay := r.opts.MinDelay
	if r.opts.MaxDelay > r.opts.MinDelay {
		delay += time.Duration(rand.Int63n(int64(r.opts.MaxDelay - r.opts.MinDelay)))
	}
	time.Sleep(delay)
}

// buildTurns maps room history to provider turns: the bot's own prior
// messages become assistant turns, everything else is a single
// undifferentiated user voice.
func buildTurns(botUserID string, history []HistoryMessage) []ai.Turn {
	turns := make([]ai.Turn, 0, len(history))
	for _, m := range history {
		role := ai.RoleUser
		if m.SenderID == botUserID {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns
}
