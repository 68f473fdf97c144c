package sources

import (
	"errors"
	"fmt"
	"strings"
)

// ExtractorYouTube is the extractor tag yt-dlp reports for YouTube videos.
const ExtractorYouTube = "youtube"

var ErrIncompleteTrack = errors.New("track is missing required fields")

// Track is an immutable descriptor of a resolved, playable track.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"source_url"`
	Uploader     string `json:"uploader"`
	UploaderURL  string `json:"uploader_url"`
	ThumbnailURL string `json:"thumbnail"`
	Extractor    string `json:"extractor"`
}

// Validate reports which required fields are missing.
func (t Track) Validate() error {
	var missing []string
	if t.ID == "" {
		missing = append(missing, "id")
	}
	if t.Title == "" {
		missing = append(missing, "title")
	}
	if t.URL == "" {
		missing = append(missing, "source_url")
	}
	if t.Extractor == "" {
		missing = append(missing, "extractor")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteTrack, strings.Join(missing, ", "))
	}
	return nil
}

func (t Track) String() string {
	if t.Uploader != "" {
		return fmt.Sprintf("%s - %s", t.Uploader, t.Title)
	}
	return t.Title
}

var extractorColors = map[string]int{
	ExtractorYouTube:  0xFF0033,
	"chzzk:video":     0x00FFA6,
	"chzzk:live":      0x00FFA6,
	"Instagram":       0xD80862,
	"instagram:story": 0xD80862,
	"Naver":           0x0AEA6A,
	"Naver:live":      0x0AEA6A,
	"navernow":        0x0AEA6A,
	"soundcloud":      0xFF5500,
	"twitch:stream":   0x944CFF,
	"twitch:clips":    0x944CFF,
	"twitch:vod":      0x944CFF,
	"vimeo":           0x20D5FF,
}

const defaultColor = 0xFF0000

// Color returns the embed color used to present tracks of the given extractor.
func Color(extractor string) int {
	if c, ok := extractorColors[extractor]; ok {
		return c
	}
	return defaultColor
}
