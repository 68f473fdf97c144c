// Package ffmpeg builds the transcoder stage: raw container audio on stdin,
// signed 16-bit little-endian PCM on stdout.
package ffmpeg

import (
	"context"
	"os/exec"
	"strconv"
)

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

type Transcoder struct {
	Path       string
	SampleRate int
	Channels   int
}

func New(path string, sampleRate, channels int) *Transcoder {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &Transcoder{Path: path, SampleRate: sampleRate, Channels: channels}
}

// Command returns an ffmpeg process reading from stdin. The caller wires
// Stdin and Stdout.
func (t *Transcoder) Command(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, t.Path,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(t.SampleRate),
		"-ac", strconv.Itoa(t.Channels),
		"pipe:1",
	)
}
