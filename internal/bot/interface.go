package bot

import "github.com/dewmguy/discordmusic/internal/music/controller"

// BotVoice is what the Discord runtime offers voice commands.
type BotVoice interface {
	Controller() *controller.Controller
	// FindUserVoiceState returns the user's voice state, or nil when the
	// user is not in a voice channel of the guild.
	FindUserVoiceState(guildID, userID string) (*VoiceState, error)
}

// VoiceState holds minimal voice channel state for a user.
type VoiceState struct {
	ChannelID string
	UserID    string
}
