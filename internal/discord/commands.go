package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/command"
	"github.com/dewmguy/discordmusic/pkg/retrylimit"
)

const registerAttempts = 3

type commandPlan struct {
	remove []*discordgo.ApplicationCommand
	create []*discordgo.ApplicationCommand
	hashes map[string]string
}

// planCommands compares what Discord has, what we want and the hashes stored
// after the last sync. A command is (re)created when its hash changed or when
// Discord lost it.
func planCommands(existing, wanted []*discordgo.ApplicationCommand, stored map[string]string) commandPlan {
	plan := commandPlan{hashes: make(map[string]string, len(wanted))}

	wantedNames := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		wantedNames[w.Name] = true
	}
	present := make(map[string]bool, len(existing))
	for _, e := range existing {
		present[e.Name] = true
		if !wantedNames[e.Name] {
			plan.remove = append(plan.remove, e)
		}
	}

	for _, w := range wanted {
		h := hashCommand(w)
		plan.hashes[w.Name] = h
		if stored[w.Name] != h || !present[w.Name] {
			plan.create = append(plan.create, w)
		}
	}
	return plan
}

// definitions collects the slash definitions of every registered command.
func (b *Bot) definitions() []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range b.commands.All() {
		if def := command.SlashDefinition(c); def != nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// registerCommands brings a guild's slash commands in line with the registry.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}
	log := b.log.With().Str("guild", guildID).Logger()

	existing, err := b.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list commands, registering all")
	}
	stored, err := b.storage.CommandHashes(guildID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load command hashes")
	}

	plan := planCommands(existing, b.definitions(), stored)

	for _, old := range plan.remove {
		log.Info().Str("command", old.Name).Msg("deleting obsolete command")
		if err := b.dg.ApplicationCommandDelete(appID, guildID, old.ID); err != nil {
			log.Error().Err(err).Str("command", old.Name).Msg("failed to delete command")
		}
	}

	if len(plan.create) == 0 {
		log.Debug().Msg("slash commands up to date")
	}
	for _, def := range plan.create {
		err := retrylimit.WithRetryMax(ctx, func() error {
			_, err := b.dg.ApplicationCommandCreate(appID, guildID, def)
			return classifyRESTError(err)
		}, b.limiter, registerAttempts)
		if err != nil {
			log.Error().Err(err).Str("command", def.Name).Msg("can't create command")
			delete(plan.hashes, def.Name)
			continue
		}
		log.Info().Str("command", def.Name).Msg("command registered")
	}

	return b.storage.SetCommandHashes(guildID, plan.hashes)
}

func (b *Bot) appID() (string, error) {
	if b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	user, err := b.dg.User("@me")
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// restStatusError exposes the HTTP status of a Discord REST error to the retry loop.
type restStatusError struct {
	*discordgo.RESTError
}

func (e restStatusError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e restStatusError) Unwrap() error { return e.RESTError }

// RetryAfter reads the wait Discord asks for on a 429, in seconds.
func (e restStatusError) RetryAfter() time.Duration {
	if e.Response == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(e.Response.Header.Get("Retry-After"), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// classifyRESTError marks client errors other than 429 as fatal so they are not retried.
func classifyRESTError(err error) error {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return err
	}
	wrapped := restStatusError{re}
	code := wrapped.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return &retrylimit.FatalError{Err: wrapped}
	}
	return wrapped
}
