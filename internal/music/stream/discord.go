// /internal/music/stream/discord.go
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"layeh.com/gopus"
)

const sendTimeout = 2 * time.Second

// Resource is one audio stream handed to a sink. ID is echoed back in the
// idle notification so stale notifications can be told apart.
type Resource struct {
	ID    string
	Audio io.Reader
}

// Voice is the outgoing side of a voice connection.
type Voice interface {
	Speaking(bool) error
	OpusSend() chan<- []byte
}

// Encoder matches *gopus.Encoder.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

type SinkOptions struct {
	SampleRate int
	Channels   int
	Bitrate    int
	Log        zerolog.Logger
}

// DiscordSink encodes PCM frames to Opus and feeds them to a voice
// connection. It plays one resource at a time and reports idle when the
// resource is exhausted or stopped.
type DiscordSink struct {
	voice      Voice
	newEncoder func() (Encoder, error)
	frameSize  int
	channels   int
	log        zerolog.Logger

	mu     sync.Mutex
	cur    *playback
	resume chan struct{} // non-nil while paused
	onIdle func(id string)
}

type playback struct {
	id       string
	stop     chan struct{}
	stopOnce sync.Once
	closer   io.Closer
}

// halt also closes the audio reader, which unblocks a read stuck on a
// stalled producer.
func (pb *playback) halt() {
	pb.stopOnce.Do(func() {
		close(pb.stop)
		if pb.closer != nil {
			_ = pb.closer.Close()
		}
	})
}

type discordVoice struct {
	vc *discordgo.VoiceConnection
}

func (d discordVoice) Speaking(b bool) error   { return d.vc.Speaking(b) }
func (d discordVoice) OpusSend() chan<- []byte { return d.vc.OpusSend }

// NewDiscordSink wraps a joined voice connection.
func NewDiscordSink(vc *discordgo.VoiceConnection, opts SinkOptions) *DiscordSink {
	opts = withSinkDefaults(opts)
	return NewSink(discordVoice{vc: vc}, func() (Encoder, error) {
		enc, err := gopus.NewEncoder(opts.SampleRate, opts.Channels, gopus.Audio)
		if err != nil {
			return nil, err
		}
		if opts.Bitrate > 0 {
			enc.SetBitrate(opts.Bitrate)
		}
		return enc, nil
	}, opts)
}

// NewSink builds a sink over any Voice and Encoder source.
func NewSink(voice Voice, newEncoder func() (Encoder, error), opts SinkOptions) *DiscordSink {
	opts = withSinkDefaults(opts)
	return &DiscordSink{
		voice:      voice,
		newEncoder: newEncoder,
		frameSize:  opts.SampleRate / 50, // 20ms
		channels:   opts.Channels,
		log:        opts.Log,
	}
}

func withSinkDefaults(opts SinkOptions) SinkOptions {
	if opts.SampleRate <= 0 {
		opts.SampleRate = sampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = channels
	}
	return opts
}

func (s *DiscordSink) SetIdleHandler(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = fn
}

// Play starts streaming res, replacing whatever was playing.
func (s *DiscordSink) Play(res Resource) error {
	enc, err := s.newEncoder()
	if err != nil {
		return fmt.Errorf("encoder error: %w", err)
	}

	pb := &playback{id: res.ID, stop: make(chan struct{})}
	if c, ok := res.Audio.(io.Closer); ok {
		pb.closer = c
	}

	s.mu.Lock()
	if s.cur != nil {
		s.cur.halt()
	}
	s.cur = pb
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
	s.mu.Unlock()

	go s.run(pb, res.Audio, enc)
	return nil
}

// Pause holds the current resource. Pausing twice is a no-op.
func (s *DiscordSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.resume != nil {
		return
	}
	s.resume = make(chan struct{})
}

func (s *DiscordSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
}

// Stop ends the current resource; the idle handler fires once it has.
func (s *DiscordSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.halt()
	}
}

// playing reports whether a resource is being streamed.
func (s *DiscordSink) playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

func (s *DiscordSink) gate() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume
}

func (s *DiscordSink) run(pb *playback, audio io.Reader, enc Encoder) {
	log := s.log.With().Str("resource", pb.id).Logger()

	_ = s.voice.Speaking(true)
	defer func() {
		_ = s.voice.Speaking(false)

		s.mu.Lock()
		if s.cur == pb {
			s.cur = nil
		}
		handler := s.onIdle
		s.mu.Unlock()

		if handler != nil {
			handler(pb.id)
		}
	}()

	if err := s.stream(pb, audio, enc); err != nil {
		log.Warn().Err(err).Msg("playback interrupted")
		return
	}
	log.Debug().Msg("playback finished")
}

func (s *DiscordSink) stream(pb *playback, audio io.Reader, enc Encoder) error {
	pcmBuf := make([]byte, s.frameSize*s.channels*2)
	intBuf := make([]int16, s.frameSize*s.channels)
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	for {
		if gate := s.gate(); gate != nil {
			select {
			case <-gate:
			case <-pb.stop:
				return nil
			}
		}

		select {
		case <-pb.stop:
			return nil
		default:
		}

		if _, err := io.ReadFull(audio, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			select {
			case <-pb.stop:
				// reader closed by the pipeline teardown
				return nil
			default:
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		frame, err := enc.Encode(intBuf, s.frameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sendTimeout)

		select {
		case s.voice.OpusSend() <- frame:
		case <-pb.stop:
			return nil
		case <-timer.C:
			return errors.New("voice send timeout")
		}
	}
}
