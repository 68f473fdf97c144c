package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/pkg/retrylimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: name, Description: desc, Type: discordgo.ChatApplicationCommand, Options: opts}
}

func opt(name string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: name, Type: discordgo.ApplicationCommandOptionString, Required: required}
}

func TestHashCommand(t *testing.T) {
	base := hashCommand(def("music", "Play music", opt("query", true), opt("playlist", false)))

	assert.Equal(t, base, hashCommand(def("music", "Play music", opt("playlist", false), opt("query", true))), "option order")

	withID := def("music", "Play music", opt("query", true), opt("playlist", false))
	withID.ID, withID.Version = "123", "456"
	assert.Equal(t, base, hashCommand(withID), "discord-assigned fields")

	assert.NotEqual(t, base, hashCommand(def("music", "Play some music", opt("query", true), opt("playlist", false))))
	assert.NotEqual(t, base, hashCommand(def("music", "Play music", opt("query", false), opt("playlist", false))))
	assert.Len(t, base, 64)
}

func names(cmds []*discordgo.ApplicationCommand) []string {
	var out []string
	for _, c := range cmds {
		out = append(out, c.Name)
	}
	return out
}

func TestPlanCommands(t *testing.T) {
	music := def("music", "Play music")
	help := def("help", "Show help")

	tests := []struct {
		name       string
		existing   []*discordgo.ApplicationCommand
		wanted     []*discordgo.ApplicationCommand
		stored     map[string]string
		wantRemove []string
		wantCreate []string
	}{
		{
			name:       "fresh guild",
			wanted:     []*discordgo.ApplicationCommand{music},
			wantCreate: []string{"music"},
		},
		{
			name:     "up to date",
			existing: []*discordgo.ApplicationCommand{music},
			wanted:   []*discordgo.ApplicationCommand{music},
			stored:   map[string]string{"music": hashCommand(music)},
		},
		{
			name:       "definition changed",
			existing:   []*discordgo.ApplicationCommand{music},
			wanted:     []*discordgo.ApplicationCommand{music},
			stored:     map[string]string{"music": "stale"},
			wantCreate: []string{"music"},
		},
		{
			name:       "deleted on discord",
			wanted:     []*discordgo.ApplicationCommand{music},
			stored:     map[string]string{"music": hashCommand(music)},
			wantCreate: []string{"music"},
		},
		{
			name:       "obsolete command removed",
			existing:   []*discordgo.ApplicationCommand{music, help},
			wanted:     []*discordgo.ApplicationCommand{music},
			stored:     map[string]string{"music": hashCommand(music), "help": hashCommand(help)},
			wantRemove: []string{"help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planCommands(tt.existing, tt.wanted, tt.stored)
			assert.Equal(t, tt.wantRemove, names(plan.remove))
			assert.Equal(t, tt.wantCreate, names(plan.create))
			assert.Equal(t, map[string]string{"music": hashCommand(music)}, plan.hashes)
		})
	}
}

func restErr(code int, header http.Header) *discordgo.RESTError {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code, Status: http.StatusText(code), Header: header}}
}

func TestClassifyRESTError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fatal  bool
		status int
	}{
		{name: "forbidden", err: restErr(http.StatusForbidden, nil), fatal: true, status: 403},
		{name: "rate limited", err: restErr(http.StatusTooManyRequests, nil), status: 429},
		{name: "server error", err: restErr(http.StatusBadGateway, nil), status: 502},
		{name: "plain error", err: errors.New("dial tcp: timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRESTError(tt.err)

			var fatal *retrylimit.FatalError
			assert.Equal(t, tt.fatal, errors.As(got, &fatal))

			var he retrylimit.HTTPError
			if tt.status == 0 {
				assert.False(t, errors.As(got, &he))
				return
			}
			require.True(t, errors.As(got, &he))
			assert.Equal(t, tt.status, he.StatusCode())
		})
	}

	assert.NoError(t, classifyRESTError(nil))
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "1.5")
	assert.Equal(t, 1500*time.Millisecond, restStatusError{restErr(429, h)}.RetryAfter())

	assert.Zero(t, restStatusError{restErr(429, http.Header{})}.RetryAfter())
	assert.Zero(t, restStatusError{&discordgo.RESTError{}}.RetryAfter())
}

func TestMembersIn(t *testing.T) {
	states := []*discordgo.VoiceState{
		{UserID: "bot", ChannelID: "c1"},
		{UserID: "u1", ChannelID: "c1"},
		{UserID: "u2", ChannelID: "c2"},
	}
	assert.Equal(t, []string{"bot", "u1"}, membersIn(states, "c1"))
	assert.Empty(t, membersIn(states, "c3"))
}

func TestGuildBlacklist(t *testing.T) {
	b := &Bot{cfg: &config.Config{DiscordGuildBlacklist: []string{"bad"}}}
	assert.True(t, b.isGuildBlacklisted("bad"))
	assert.False(t, b.isGuildBlacklisted("good"))
}
