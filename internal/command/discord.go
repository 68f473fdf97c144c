package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/storage"
	"github.com/dewmguy/discordmusic/pkg/cmd"
)

// SlashInteractionContext is the invocation data of a slash command run.
type SlashInteractionContext struct {
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	Storage *storage.Storage
}

// SlashProvider is implemented by commands registered as Discord slash commands.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// DiscordMeta lets middleware read a command's grouping through the adapter.
type DiscordMeta interface {
	Group() string
	Category() string
}

// DiscordCommand is implemented by every slash command.
type DiscordCommand interface {
	Name() string
	Description() string
	Group() string
	Category() string
	Run(ctx context.Context, slash *SlashInteractionContext) error
}

// DiscordAdapter lets a DiscordCommand live in a cmd.Registry.
type DiscordAdapter struct {
	Cmd DiscordCommand
}

func (a *DiscordAdapter) Name() string        { return a.Cmd.Name() }
func (a *DiscordAdapter) Description() string { return a.Cmd.Description() }
func (a *DiscordAdapter) Group() string       { return a.Cmd.Group() }
func (a *DiscordAdapter) Category() string    { return a.Cmd.Category() }

func (a *DiscordAdapter) Run(ctx context.Context, inv *cmd.Invocation) error {
	slash, ok := inv.Data.(*SlashInteractionContext)
	if !ok {
		return fmt.Errorf("%s: invoked outside a slash interaction", a.Name())
	}
	return a.Cmd.Run(ctx, slash)
}

func (a *DiscordAdapter) SlashDefinition() *discordgo.ApplicationCommand {
	if sp, ok := a.Cmd.(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// Register adapts a Discord command, decorates it with mws and adds it to reg.
func Register(reg *cmd.Registry, discordCmd DiscordCommand, mws ...cmd.Middleware) error {
	return reg.Register(cmd.Apply(&DiscordAdapter{Cmd: discordCmd}, mws...))
}

// SlashDefinition returns the slash definition of a registered command, if it has one.
func SlashDefinition(c cmd.Command) *discordgo.ApplicationCommand {
	sp, ok := cmd.Root(c).(SlashProvider)
	if !ok {
		return nil
	}
	def := sp.SlashDefinition()
	if def != nil && def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	return def
}

// Summarize flattens the invoked subcommand and its options into one line,
// e.g. "queue query=lofi playlist=true".
func Summarize(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	var parts []string
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
			parts = append(parts, o.Name)
			if rest := Summarize(o.Options); rest != "" {
				parts = append(parts, rest)
			}
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", o.Name, o.Value))
		}
	}
	return strings.Join(parts, " ")
}
