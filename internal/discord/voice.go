package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/bot"
	"github.com/dewmguy/discordmusic/internal/music/player"
	"github.com/dewmguy/discordmusic/internal/music/stream"
)

// voiceConnector joins voice channels through the gateway session.
type voiceConnector struct {
	dg   *discordgo.Session
	sink stream.SinkOptions
}

// voiceConnection pairs the joined channel with the sink playing into it.
type voiceConnection struct {
	*stream.DiscordSink
	vc *discordgo.VoiceConnection
}

func (c *voiceConnection) Disconnect() error {
	c.DiscordSink.Stop()
	return c.vc.Disconnect()
}

func (v *voiceConnector) Join(ctx context.Context, guildID, channelID string) (player.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := v.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}
	return &voiceConnection{DiscordSink: stream.NewDiscordSink(vc, v.sink), vc: vc}, nil
}

// FindUserVoiceState finds the voice state of a user. It returns nil when
// the user is not in a voice channel.
func (b *Bot) FindUserVoiceState(guildID, userID string) (*bot.VoiceState, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving guild: %w", err)
	}

	b.dg.State.RLock()
	defer b.dg.State.RUnlock()
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return &bot.VoiceState{ChannelID: vs.ChannelID, UserID: vs.UserID}, nil
		}
	}
	return nil, nil
}

// membersIn lists the users whose voice state places them in channelID.
func membersIn(states []*discordgo.VoiceState, channelID string) []string {
	var members []string
	for _, vs := range states {
		if vs.ChannelID == channelID {
			members = append(members, vs.UserID)
		}
	}
	return members
}

// onVoiceStateUpdate feeds the presence reaper. The state cache is updated
// before handlers run, so it already reflects the change.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	p, err := b.sessions.Get(v.GuildID)
	if err != nil {
		return
	}
	guild, err := s.State.Guild(v.GuildID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", v.GuildID).Msg("voice update for unknown guild")
		return
	}

	s.State.RLock()
	members := membersIn(guild.VoiceStates, p.ChannelID())
	s.State.RUnlock()

	b.sessions.HandlePresence(player.PresenceEvent{
		GuildID:   v.GuildID,
		ChannelID: p.ChannelID(),
		Members:   members,
		SelfID:    s.State.User.ID,
	})
}
