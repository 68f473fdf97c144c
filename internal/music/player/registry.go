package player

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dewmguy/discordmusic/pkg/util"
	"github.com/rs/zerolog"
)

const closeWorkers = 4

// Connection is a joined voice channel.
type Connection interface {
	Sink
	Disconnect() error
}

// Voice joins voice channels.
type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// PresenceEvent reports who is in a voice channel after a voice-state change.
type PresenceEvent struct {
	GuildID   string
	ChannelID string
	Members   []string
	// SelfID is the bot's own user id.
	SelfID string
}

type session struct {
	player *Player
	conn   Connection
}

// Registry maps guilds to their sessions. At most one session exists per guild.
type Registry struct {
	voice Voice
	opts  Options
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	joining  map[string]struct{}
	onCreate func(*Player)
}

func NewRegistry(voice Voice, opts Options) *Registry {
	return &Registry{
		voice:    voice,
		opts:     opts,
		log:      opts.Log,
		sessions: make(map[string]*session),
		joining:  make(map[string]struct{}),
	}
}

// Create joins channelID and starts a session for guildID.
func (r *Registry) Create(ctx context.Context, guildID, channelID string) (*Player, error) {
	r.mu.Lock()
	_, exists := r.sessions[guildID]
	_, pending := r.joining[guildID]
	if exists || pending {
		r.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	r.joining[guildID] = struct{}{}
	r.mu.Unlock()

	conn, err := r.voice.Join(ctx, guildID, channelID)

	r.mu.Lock()
	delete(r.joining, guildID)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	p := New(guildID, channelID, conn, r.opts)
	r.sessions[guildID] = &session{player: p, conn: conn}
	hook := r.onCreate
	r.mu.Unlock()

	r.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("session created")
	if hook != nil {
		hook(p)
	}
	return p, nil
}

// OnCreate registers fn to be called with every new session.
func (r *Registry) OnCreate(fn func(*Player)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = fn
}

func (r *Registry) Get(guildID string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if !ok {
		return nil, ErrNotConnected
	}
	return s.player, nil
}

// Destroy stops the guild's session and leaves the voice channel. A guild
// without a session is a no-op.
func (r *Registry) Destroy(guildID string) error {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := s.player.Stop(); err != nil {
		r.log.Warn().Err(err).Str("guild", guildID).Msg("failed to stop session")
	}
	if err := s.conn.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	r.log.Info().Str("guild", guildID).Msg("session destroyed")
	return nil
}

// HandlePresence destroys a session whose channel no longer holds anyone but
// the bot, or no longer holds the bot at all.
func (r *Registry) HandlePresence(ev PresenceEvent) {
	r.mu.Lock()
	s, ok := r.sessions[ev.GuildID]
	r.mu.Unlock()

	if !ok || s.player.ChannelID() != ev.ChannelID {
		return
	}

	hasSelf := slices.Contains(ev.Members, ev.SelfID)
	others := 0
	for _, m := range ev.Members {
		if m != ev.SelfID {
			others++
		}
	}
	if hasSelf && others > 0 {
		return
	}

	reason := "alone in channel"
	if !hasSelf {
		reason = "removed from channel"
	}
	r.log.Info().Str("guild", ev.GuildID).Str("reason", reason).Msg("reaping session")
	if err := r.Destroy(ev.GuildID); err != nil {
		r.log.Warn().Err(err).Str("guild", ev.GuildID).Msg("failed to reap session")
	}
}

// Guilds returns the guilds with a live session.
func (r *Registry) Guilds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for g := range r.sessions {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Close destroys every session.
func (r *Registry) Close() {
	_ = util.Parallel(context.Background(), r.Guilds(), closeWorkers, func(_ context.Context, guildID string) error {
		if err := r.Destroy(guildID); err != nil {
			r.log.Warn().Err(err).Str("guild", guildID).Msg("failed to close session")
		}
		return nil
	})
}
