package middleware

import (
	"context"

	"github.com/dewmguy/discordmusic/internal/command"
	"github.com/dewmguy/discordmusic/pkg/cmd"
)

// WithGuildOnly wraps a command to drop invocations outside a guild
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if v, ok := inv.Data.(*command.SlashInteractionContext); ok && v.Event.GuildID == "" {
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}
