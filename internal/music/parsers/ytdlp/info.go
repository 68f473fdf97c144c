package ytdlp

import (
	"context"
	"os/exec"

	"github.com/lrstanley/go-ytdlp"
)

// RecordTemplate prints one JSON object per resolved entry. Missing fields
// come out as the NA placeholder, which is set to a bare null.
const RecordTemplate = `{"id":%(id)j,"title":%(title)j,"uploader":%(uploader)j,` +
	`"source_url":%(webpage_url,url)j,"uploader_url":%(uploader_url)j,` +
	`"thumbnail":%(thumbnail)j,"extractor":%(extractor)j}`

type InfoOptions struct {
	Path          string
	DefaultSearch string
	Proxy         string
}

// InfoCommand builds the metadata-only invocation for query. With playlist
// set, every entry of a playlist URL is printed as it is discovered.
func InfoCommand(ctx context.Context, opts InfoOptions, query string, playlist bool) *exec.Cmd {
	b := ytdlp.New().
		Print(RecordTemplate).
		NoWarnings().
		IgnoreConfig()
	if playlist {
		b.FlatPlaylist()
	} else {
		b.NoPlaylist()
	}
	if opts.Proxy != "" {
		b.Proxy(opts.Proxy)
	}

	search := opts.DefaultSearch
	if search == "" {
		search = "ytsearch"
	}
	args := []string{
		"--skip-download",
		"--output-na-placeholder", "null",
		"--default-search", search,
	}
	if playlist {
		args = append(args, "--yes-playlist")
	} else {
		// a playlist or channel URL would otherwise be walked in full
		args = append(args, "--playlist-items", "1")
	}
	args = append(args, "--", query)

	return WithBinary(b.BuildCommand(ctx, args...), opts.Path)
}
