package music

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/bot"
	"github.com/dewmguy/discordmusic/internal/command"
	"github.com/dewmguy/discordmusic/internal/music/controller"
	"github.com/rs/zerolog"
)

const joinTimeout = 15 * time.Second

type MusicCommand struct {
	Bot bot.BotVoice
	Log zerolog.Logger
}

func (c *MusicCommand) Name() string        { return "music" }
func (c *MusicCommand) Description() string { return "Control music playback" }
func (c *MusicCommand) Group() string       { return "music" }
func (c *MusicCommand) Category() string    { return "🎵 Music" }

func (c *MusicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	sub := func(name, description string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        name,
			Description: description,
			Options:     opts,
		}
	}
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			sub("join", "Join your voice channel"),
			sub("leave", "Leave the voice channel"),
			sub("queue", "Queue a track or a playlist",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Link or search query",
					Required:    true,
				},
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "playlist",
					Description: "Queue every entry of a playlist link",
				},
			),
			sub("play", "Resume paused playback"),
			sub("pause", "Pause playback"),
			sub("skip", "Skip the current track"),
			sub("stop", "Stop playback and leave the voice channel"),
			sub("nowplaying", "Show the current track"),
			sub("list", "Show the queue"),
		},
	}
}

func (c *MusicCommand) Run(ctx context.Context, slash *command.SlashInteractionContext) error {
	s := slash.Session
	e := slash.Event

	opts := e.ApplicationCommandData().Options
	if len(opts) == 0 {
		return bot.RespondEmbedEphemeral(s, e, &discordgo.MessageEmbed{
			Description: "Missing subcommand.",
		})
	}

	if err := bot.RespondDeferred(s, e); err != nil {
		return fmt.Errorf("failed to defer response: %w", err)
	}

	sub := opts[0]
	reply, err := c.dispatch(ctx, e, sub)
	if err != nil {
		c.Log.Debug().Err(err).Str("guild", e.GuildID).Str("sub", sub.Name).Msg("music command rejected")
		return bot.Followup(s, e, controller.UserMessage(err))
	}
	if reply.embed != nil {
		return bot.FollowupEmbed(s, e, reply.embed)
	}
	return bot.Followup(s, e, reply.text)
}

type reply struct {
	text  string
	embed *discordgo.MessageEmbed
}

func (c *MusicCommand) dispatch(ctx context.Context, e *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) (reply, error) {
	ctl := c.Bot.Controller()
	guildID := e.GuildID
	channelID := c.userChannel(e)

	switch sub.Name {
	case "join":
		joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		defer cancel()
		if _, err := ctl.Join(joinCtx, guildID, channelID); err != nil {
			return reply{}, err
		}
		return reply{text: fmt.Sprintf("🔊 Joined <#%s>!", channelID)}, nil

	case "leave":
		if err := ctl.Leave(guildID, channelID); err != nil {
			return reply{}, err
		}
		return reply{text: "👋 Left the voice channel."}, nil

	case "queue":
		var query string
		var playlist bool
		for _, opt := range sub.Options {
			switch opt.Name {
			case "query":
				query = opt.StringValue()
			case "playlist":
				playlist = opt.BoolValue()
			}
		}
		tracks, err := ctl.Enqueue(ctx, guildID, channelID, query, playlist)
		if err != nil {
			return reply{}, err
		}
		return reply{embed: queuedEmbed(tracks[0], playlist)}, nil

	case "play":
		if err := ctl.Play(guildID, channelID); err != nil {
			return reply{}, err
		}
		return reply{text: "▶️ Resumed playback."}, nil

	case "pause":
		if err := ctl.Pause(guildID, channelID); err != nil {
			return reply{}, err
		}
		return reply{text: "⏸️ Paused playback."}, nil

	case "skip":
		t, err := ctl.Skip(guildID, channelID)
		if err != nil {
			return reply{}, err
		}
		return reply{embed: noticeEmbed("⏭️ Skipped", t)}, nil

	case "stop":
		t, err := ctl.Stop(guildID, channelID)
		if err != nil {
			return reply{}, err
		}
		return reply{embed: noticeEmbed("⏹️ Stopped", t)}, nil

	case "nowplaying":
		t, err := ctl.NowPlaying(guildID)
		if err != nil {
			return reply{}, err
		}
		return reply{embed: nowPlayingEmbed(t)}, nil

	case "list":
		view, err := ctl.Queue(guildID)
		if err != nil {
			return reply{}, err
		}
		return reply{embed: queueListEmbed(view)}, nil
	}
	return reply{text: fmt.Sprintf("Unknown subcommand: %s", sub.Name)}, nil
}

// userChannel returns the caller's voice channel, or "" when they are not in one.
func (c *MusicCommand) userChannel(e *discordgo.InteractionCreate) string {
	if e.Member == nil || e.Member.User == nil {
		return ""
	}
	vs, err := c.Bot.FindUserVoiceState(e.GuildID, e.Member.User.ID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}
