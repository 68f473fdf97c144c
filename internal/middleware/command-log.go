package middleware

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/bot"
	"github.com/dewmguy/discordmusic/internal/command"
	"github.com/dewmguy/discordmusic/pkg/cmd"
	"github.com/rs/zerolog/log"
)

// WithCommandLogger wraps a command to record its execution in the guild's history
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok || v.Storage == nil {
				return err
			}
			e := v.Event
			user := resolveUser(v.Session, e)
			param := command.Summarize(e.ApplicationCommandData().Options)
			if logErr := bot.LogCommand(v.Session, v.Storage, e.GuildID, e.ChannelID, user.ID, user.Username, c.Name(), param); logErr != nil {
				log.Warn().Err(logErr).Str("command", c.Name()).Msg("failed to log command")
			}
			return err
		})
	}
}

// resolveUser safely retrieves the user object from an InteractionCreate event
func resolveUser(s *discordgo.Session, e *discordgo.InteractionCreate) *discordgo.User {
	if e.Member != nil && e.Member.User != nil {
		return e.Member.User
	}
	if e.User != nil {
		if e.User.Username != "" || s == nil {
			return e.User
		}
		if u, err := s.User(e.User.ID); err == nil {
			return u
		}
		return e.User
	}
	// Safe fallback
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}
