package command

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingCommand struct {
	got *SlashInteractionContext
}

func (c *pingCommand) Name() string        { return "ping" }
func (c *pingCommand) Description() string { return "Check the bot" }
func (c *pingCommand) Group() string       { return "core" }
func (c *pingCommand) Category() string    { return "Core" }
func (c *pingCommand) Run(_ context.Context, slash *SlashInteractionContext) error {
	c.got = slash
	return nil
}

func (c *pingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func TestRegisterAppliesMiddlewareAndExposesDefinition(t *testing.T) {
	reg := cmd.NewRegistry()
	inner := &pingCommand{}

	var calls []string
	mw := func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			calls = append(calls, "before")
			return c.Run(ctx, inv)
		})
	}
	require.NoError(t, Register(reg, inner, mw))
	assert.Error(t, Register(reg, inner), "names are unique")

	c, ok := reg.Get("ping")
	require.True(t, ok)

	data := &SlashInteractionContext{}
	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Data: data}))
	assert.Equal(t, []string{"before"}, calls)
	assert.Same(t, data, inner.got)

	def := SlashDefinition(c)
	require.NotNil(t, def)
	assert.Equal(t, "ping", def.Name)
	assert.Equal(t, discordgo.ChatApplicationCommand, def.Type)

	meta, ok := cmd.Root(c).(DiscordMeta)
	require.True(t, ok)
	assert.Equal(t, "core", meta.Group())
}

func TestSummarize(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{{
		Name: "queue",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "lofi"},
			{Name: "playlist", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		},
	}}
	assert.Equal(t, "queue query=lofi playlist=true", Summarize(opts))

	bare := []*discordgo.ApplicationCommandInteractionDataOption{{Name: "skip", Type: discordgo.ApplicationCommandOptionSubCommand}}
	assert.Equal(t, "skip", Summarize(bare))
	assert.Empty(t, Summarize(nil))
}

func TestAdapterRejectsForeignInvocation(t *testing.T) {
	inner := &pingCommand{}
	a := &DiscordAdapter{Cmd: inner}

	err := a.Run(context.Background(), &cmd.Invocation{Args: []string{"x"}})
	assert.ErrorContains(t, err, "ping")
	assert.Nil(t, inner.got)
}
