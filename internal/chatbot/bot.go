// Package chatbot implements the moderation bot: it greets new users and
// warns, then blocks, users who post harmful words.
package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/store"
)

// WarningTTL is how long a user's warning count is remembered.
const WarningTTL = 24 * time.Hour

// DefaultHarmfulWords is used when no word list is configured.
var DefaultHarmfulWords = []string{"idiot", "stupid", "moron", "loser", "shut up", "kill yourself"}

// Blocker blocks users from chatting.
type Blocker interface {
	Block(ctx context.Context, username string) error
}

// Config configures a Bot.
type Config struct {
	Name       string
	Words      []string
	BlockAfter int64
}

// Verdict is the outcome of inspecting a message.
type Verdict struct {
	Harmful bool
	Words   []string
	Level   int64
	Blocked bool
	Reply   *models.Message
}

// Bot posts welcome messages and moderation warnings as a regular chat user.
type Bot struct {
	name       string
	words      []string
	blockAfter int64
	eph        store.Ephemeral
	blocker    Blocker
	logger     zerolog.Logger
}

// New creates a bot that writes its messages to eph and blocks through blocker.
func New(cfg Config, eph store.Ephemeral, blocker Blocker, logger zerolog.Logger) *Bot {
	if cfg.Name == "" {
		cfg.Name = "ModBot"
	}
	if len(cfg.Words) == 0 {
		cfg.Words = DefaultHarmfulWords
	}
	if cfg.BlockAfter <= 0 {
		cfg.BlockAfter = 3
	}

	words := make([]string, 0, len(cfg.Words))
	for _, w := range cfg.Words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}

	return &Bot{
		name:       cfg.Name,
		words:      words,
		blockAfter: cfg.BlockAfter,
		eph:        eph,
		blocker:    blocker,
		logger:     logger,
	}
}

// Name returns the bot's chat username.
func (b *Bot) Name() string {
	return b.name
}

// Scan returns the harmful words contained in text, case-insensitively.
func Scan(text string, words []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			found = append(found, w)
		}
	}
	return found
}

// Welcome greets username in roomID the first time they join any room.
// It returns nil when the user was greeted before.
func (b *Bot) Welcome(ctx context.Context, roomID, username string) (*models.Message, error) {
	first, err := b.eph.MarkWelcomed(ctx, username)
	if err != nil || !first {
		return nil, err
	}
	return b.post(ctx, roomID, fmt.Sprintf("👋 Welcome, %s! Enjoy the chat!", username))
}

// Inspect scans a message before it is stored. Harmful messages raise the
// sender's warning level; at BlockAfter warnings the sender is blocked.
func (b *Bot) Inspect(ctx context.Context, roomID, username, body string) (*Verdict, error) {
	found := Scan(body, b.words)
	if len(found) == 0 {
		return &Verdict{}, nil
	}

	level, err := b.eph.IncrementWarnings(ctx, username, WarningTTL)
	if err != nil {
		return nil, err
	}
	v := &Verdict{Harmful: true, Words: found, Level: level}

	var text string
	switch {
	case level >= b.blockAfter:
		if err := b.blocker.Block(ctx, username); err != nil {
			return nil, err
		}
		if err := b.eph.ResetWarnings(ctx, username); err != nil {
			return nil, err
		}
		v.Blocked = true
		text = fmt.Sprintf("🚫 %s has been blocked after repeated warnings.", username)
	case level == 1:
		text = fmt.Sprintf("⚠️ %s, please keep the conversation respectful.", username)
	default:
		text = fmt.Sprintf("⛔ %s, final warning: the next violation gets you blocked.", username)
	}

	b.logger.Info().
		Str("user", username).
		Str("room", roomID).
		Int64("level", level).
		Bool("blocked", v.Blocked).
		Msg("harmful message rejected")

	v.Reply, err = b.post(ctx, roomID, text)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (b *Bot) post(ctx context.Context, roomID, text string) (*models.Message, error) {
	msg := &models.Message{
		RoomID: roomID,
		From:   b.name,
		Body:   text,
		Bot:    true,
	}
	if err := b.eph.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
