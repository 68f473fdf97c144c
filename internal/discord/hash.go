package discord

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// hashedCommand is the part of a definition Discord cares about; ids and
// versions assigned by Discord are left out.
type hashedCommand struct {
	Name        string                           `json:"name"`
	Description string                           `json:"description"`
	Type        discordgo.ApplicationCommandType `json:"type"`
	Options     []hashedOption                   `json:"options,omitempty"`
}

type hashedOption struct {
	Name        string                                 `json:"name"`
	Description string                                 `json:"description"`
	Type        discordgo.ApplicationCommandOptionType `json:"type"`
	Required    bool                                   `json:"required"`
	Choices     []hashedChoice                         `json:"choices,omitempty"`
	Options     []hashedOption                         `json:"options,omitempty"`
}

type hashedChoice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// hashCommand returns a stable digest of a command definition. Option order
// does not change the digest.
func hashCommand(cmd *discordgo.ApplicationCommand) string {
	data, _ := json.Marshal(hashedCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
		Type:        cmd.Type,
		Options:     hashOptions(cmd.Options),
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashOptions(opts []*discordgo.ApplicationCommandOption) []hashedOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]hashedOption, len(opts))
	for i, o := range opts {
		out[i] = hashedOption{
			Name:        o.Name,
			Description: o.Description,
			Type:        o.Type,
			Required:    o.Required,
			Options:     hashOptions(o.Options),
		}
		for _, c := range o.Choices {
			out[i].Choices = append(out[i].Choices, hashedChoice{Name: c.Name, Value: c.Value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
