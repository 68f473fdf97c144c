package music

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dewmguy/discordmusic/internal/music/controller"
	"github.com/dewmguy/discordmusic/internal/music/sources"
)

const (
	noticeColor   = 0xd1d1d1
	listPageLimit = 10
)

func trackLink(t sources.Track) string {
	return fmt.Sprintf("[%s](%s)", t.Title, t.URL)
}

// queuedEmbed announces a track added to the queue, colored after its source.
func queuedEmbed(t sources.Track, playlist bool) *discordgo.MessageEmbed {
	from := t.Uploader
	if from == "" {
		from = t.Extractor
	}
	embed := &discordgo.MessageEmbed{
		Color:       sources.Color(t.Extractor),
		Author:      &discordgo.MessageEmbedAuthor{Name: t.Extractor, URL: t.UploaderURL},
		Title:       "Queued Track from " + from,
		Description: trackLink(t),
		Footer:      &discordgo.MessageEmbedFooter{Text: t.URL},
	}
	if playlist {
		embed.Title = "Queued Playlist from " + from
		embed.Footer.Text = "The rest of the playlist is being added in the background."
	}
	if t.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ThumbnailURL}
	}
	return embed
}

func noticeEmbed(action string, t sources.Track) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       noticeColor,
		Description: fmt.Sprintf("%s %s", action, trackLink(t)),
	}
}

func nowPlayingEmbed(t sources.Track) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color:       sources.Color(t.Extractor),
		Title:       "🎶 Now Playing",
		Description: trackLink(t),
	}
	if t.Uploader != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: t.Uploader}
	}
	if t.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ThumbnailURL}
	}
	return embed
}

// queueListEmbed shows the current track and what follows it.
func queueListEmbed(view controller.QueueView) *discordgo.MessageEmbed {
	var b strings.Builder
	shown := 0
	for i := view.Cursor; i < len(view.Tracks) && shown < listPageLimit; i++ {
		t := view.Tracks[i]
		if i == view.Cursor && view.State.Active() {
			fmt.Fprintf(&b, "▶️ %s\n", trackLink(t))
		} else {
			fmt.Fprintf(&b, "`%d.` %s\n", i-view.Cursor, trackLink(t))
		}
		shown++
	}
	remaining := len(view.Tracks) - view.Cursor
	if remaining > shown {
		fmt.Fprintf(&b, "…and %d more", remaining-shown)
	}
	if b.Len() == 0 {
		b.WriteString("The queue is empty.")
	}
	return &discordgo.MessageEmbed{
		Color:       noticeColor,
		Title:       fmt.Sprintf("📜 Queue (%s)", view.State),
		Description: strings.TrimRight(b.String(), "\n"),
	}
}
