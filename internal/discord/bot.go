package discord

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/bot"
	"github.com/dewmguy/discordmusic/internal/command"
	"github.com/dewmguy/discordmusic/internal/command/music"
	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/internal/logger"
	"github.com/dewmguy/discordmusic/internal/middleware"
	"github.com/dewmguy/discordmusic/internal/music/controller"
	"github.com/dewmguy/discordmusic/internal/music/player"
	"github.com/dewmguy/discordmusic/internal/music/stream"
	"github.com/dewmguy/discordmusic/internal/storage"
	"github.com/dewmguy/discordmusic/pkg/cmd"
	"github.com/dewmguy/discordmusic/pkg/jobmgr"
	"github.com/dewmguy/discordmusic/pkg/retrylimit"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Deps are the music components the bot drives.
type Deps struct {
	Resolver controller.Resolver
	Pipeline *stream.Factory
}

// Bot is a Discord bot
type Bot struct {
	dg         *discordgo.Session
	storage    *storage.Storage
	cfg        *config.Config
	log        zerolog.Logger
	commands   *cmd.Registry
	limiter    *retrylimit.AdaptiveLimiter
	jobs       *jobmgr.Manager
	sessions   *player.Registry
	controller *controller.Controller
}

var _ bot.BotVoice = (*Bot)(nil)

// StartBot starts the Discord bot and blocks until ctx is done.
func StartBot(ctx context.Context, cfg *config.Config, store *storage.Storage, deps Deps, log zerolog.Logger) error {
	b := &Bot{
		cfg:      cfg,
		storage:  store,
		log:      logger.Component(log, "discord"),
		commands: cmd.NewRegistry(),
		limiter:  retrylimit.NewAdaptiveLimiter(40, 1, 40, 1, 0.5),
	}
	b.jobs = jobmgr.NewManager(func(ev jobmgr.Event) {
		e := b.log.Debug()
		if ev.Phase == jobmgr.PhaseFailed {
			e = b.log.Warn().Err(ev.Err)
		}
		e.Str("job", ev.Job).Str("phase", string(ev.Phase)).Dur("elapsed", ev.Elapsed).Msg("job status")
	})
	if err := b.run(ctx, cfg.DiscordToken, deps); err != nil {
		return fmt.Errorf("bot run error: %w", err)
	}
	return nil
}

// run starts the Discord bot
func (b *Bot) run(ctx context.Context, token string, deps Deps) error {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg

	voice := &voiceConnector{dg: dg, sink: stream.SinkOptions{
		SampleRate: b.cfg.SampleRate,
		Channels:   b.cfg.Channels,
		Bitrate:    b.cfg.OpusBitrate,
		Log:        logger.Component(b.log, "sink"),
	}}
	b.sessions = player.NewRegistry(voice, player.Options{
		NewPipeline: func() player.Pipeline { return deps.Pipeline.New() },
		Jobs:        b.jobs,
		Log:         logger.Component(b.log, "player"),
	})
	b.sessions.OnCreate(b.watchSession)
	b.controller = controller.New(b.sessions, deps.Resolver, controller.Options{
		PlaylistTimeout: b.cfg.PlaylistTimeout,
		Log:             logger.Component(b.log, "controller"),
	})
	b.registerMusicCommands()

	b.configureIntents()
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("❎ Shutdown signal received. Cleaning up...")
	b.sessions.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.jobs.Shutdown(shutdownCtx); err != nil {
		b.log.Warn().Err(err).Msg("background jobs did not finish in time")
	}
	return nil
}

// configureIntents asks only for what a voice bot needs
func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
}

// registerMusicCommands registers the music commands
func (b *Bot) registerMusicCommands() {
	err := command.Register(b.commands,
		&music.MusicCommand{Bot: b, Log: logger.Component(b.log, "music")},
		middleware.WithCommandLogger(),
		middleware.WithGuildOnly(),
	)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to register music commands")
	}
}

// Controller exposes the command surface to slash commands.
func (b *Bot) Controller() *controller.Controller {
	return b.controller
}

// onReady is called when the bot is ready
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		b.setupGuild(s, g.ID, g.Name)
	}
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("✅ Discord bot is running")
}

// onGuildCreate is called when a guild becomes available or the bot joins one
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.log.Info().Str("guild", g.Guild.ID).Str("name", g.Guild.Name).Msg("guild available")
	b.setupGuild(s, g.Guild.ID, g.Guild.Name)
}

// setupGuild leaves blacklisted guilds and syncs slash commands for the rest.
// Command sync runs as a job so a slow registration does not block the gateway.
func (b *Bot) setupGuild(s *discordgo.Session, guildID, name string) {
	if b.isGuildBlacklisted(guildID) {
		b.log.Info().Str("guild", guildID).Str("name", name).Msg("leaving blacklisted guild")
		if err := s.GuildLeave(guildID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
		}
		return
	}

	if !b.cfg.InitSlashCommands {
		b.log.Debug().Str("guild", guildID).Msg("registering slash commands skipped")
		return
	}
	err := b.jobs.StartAsync(context.Background(), "commands:"+guildID, func(ctx context.Context) error {
		return b.registerCommands(ctx, guildID)
	})
	if err != nil {
		b.log.Debug().Err(err).Str("guild", guildID).Msg("command sync already running")
	}
}

// onInteractionCreate is called when an interaction is created
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	c, ok := b.commands.Get(data.Name)
	if !ok {
		b.log.Warn().Str("command", data.Name).Msg("unknown command")
		return
	}

	inv := &cmd.Invocation{Data: &command.SlashInteractionContext{
		Session: s,
		Event:   i,
		Storage: b.storage,
	}}
	if err := c.Run(context.Background(), inv); err != nil {
		b.log.Error().Err(err).Str("command", data.Name).Msg("error running slash command")
		_ = bot.RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{
			Color:       bot.EmbedColor,
			Description: fmt.Sprintf("Error running slash command: %v", err),
		})
	}
}

// watchSession logs a session's status events until it stops.
func (b *Bot) watchSession(p *player.Player) {
	log := b.log.With().Str("guild", p.GuildID()).Logger()
	go func() {
		for {
			select {
			case ev := <-p.Status:
				e := log.Info()
				if ev.Err != nil {
					e = log.Warn().Err(ev.Err)
				}
				e.Str("status", ev.Status.StringEmoji()).Str("track", ev.Track.Title).Msg(string(ev.Status))
			case <-p.Done():
				return
			}
		}
	}()
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.DiscordGuildBlacklist, guildID)
}
