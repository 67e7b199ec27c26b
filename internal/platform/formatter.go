package platform

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// EmbedFormatter turns a stored embed definition into platform embeds. The
// definition format is treated as opaque by the rest of the system.
type EmbedFormatter interface {
	Render(embedJSON string) ([]*discordgo.MessageEmbed, error)
}

// JSONEmbedFormatter renders definitions that are plain platform embed
// JSON, either a single object or an array.
type JSONEmbedFormatter struct{}

func (JSONEmbedFormatter) Render(embedJSON string) ([]*discordgo.MessageEmbed, error) {
	trimmed := strings.TrimSpace(embedJSON)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var embeds []*discordgo.MessageEmbed
		if err := json.Unmarshal([]byte(trimmed), &embeds); err != nil {
			return nil, err
		}
		return embeds, nil
	}
	var embed discordgo.MessageEmbed
	if err := json.Unmarshal([]byte(trimmed), &embed); err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{&embed}, nil
}
