package parsers

import (
	"context"
	"io"

	"github.com/dewmguy/discordmusic/internal/music/sources"
)

// Extractor turns a track into a raw audio bytestream that a transcoder can read.
type Extractor interface {
	Name() string
	Open(ctx context.Context, track sources.Track) (Source, error)
}

// Source is one running extraction.
type Source interface {
	// Stream is handed to the transcoder as its stdin. An *os.File is passed
	// to the child process directly, anything else is copied by os/exec.
	Stream() io.Reader
	// Detach drops this process's own reference to the stream once the
	// transcoder has started.
	Detach()
	// Wait blocks until the producer is done.
	Wait() error
	// Terminate asks the producer to stop and returns immediately.
	Terminate()
}
