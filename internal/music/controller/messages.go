package controller

import (
	"errors"

	"github.com/dewmguy/discordmusic/internal/music/player"
	"github.com/dewmguy/discordmusic/internal/music/source_resolver"
)

// UserMessage turns an error from the controller into a reply for the user.
// "Nothing found" and internal failures are kept apart.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var stateErr *player.StateError
	var resErr *source_resolver.ResolutionError
	switch {
	case errors.Is(err, ErrUserNotInVoice):
		return "❌ Join a voice channel first!"
	case errors.Is(err, player.ErrAlreadyConnected):
		return "❌ I am already in a voice channel!"
	case errors.Is(err, player.ErrNotConnected), errors.Is(err, player.ErrSessionStopped):
		return "❌ The bot is not in a voice channel!"
	case errors.Is(err, ErrDifferentChannel):
		return "❌ You cannot control the bot from outside the voice channel."
	case errors.Is(err, ErrNothingPlaying):
		return "❌ No music is currently playing."
	case source_resolver.IsNoResults(err):
		return "❌ I couldn't find music matching your request."
	case errors.As(err, &stateErr):
		switch stateErr.Op {
		case "resume":
			return "❌ There is no music currently paused or queued!"
		case "skip":
			return "❌ There is no music playing to skip!"
		default:
			return "❌ There is no music currently playing or queued!"
		}
	case errors.As(err, &resErr):
		return "❌ Something went wrong while looking that up. Try again later."
	}
	return "❌ An internal error occurred."
}
