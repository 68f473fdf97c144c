package player

import (
	"errors"
	"fmt"

	"github.com/dewmguy/discordmusic/internal/music/sources"
)

type State int

const (
	StateEmpty State = iota
	StatePlaying
	StatePaused
	StateIdle
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether a track is loaded in the sink. A paused session
// counts as active.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}

type PlayerStatus string

const (
	StatusPlaying PlayerStatus = "Playing"
	StatusAdded   PlayerStatus = "Track(s) Added"
	StatusPaused  PlayerStatus = "Playback Paused"
	StatusResumed PlayerStatus = "Playback Resumed"
	StatusIdle    PlayerStatus = "Queue Finished"
	StatusStopped PlayerStatus = "Playback Stopped"
	StatusError   PlayerStatus = "Error"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying: "▶️",
		StatusAdded:   "🎶",
		StatusPaused:  "⏸",
		StatusResumed: "▶️",
		StatusIdle:    "💤",
		StatusStopped: "⏹",
		StatusError:   "❌",
	}
	return m[status]
}

// StatusEvent is published on Player.Status.
type StatusEvent struct {
	Status PlayerStatus
	Track  sources.Track
	Err    error
}

var (
	ErrSessionStopped   = errors.New("session is stopped")
	ErrAlreadyConnected = errors.New("already connected to a voice channel in this guild")
	ErrNotConnected     = errors.New("not connected to a voice channel in this guild")
)

// StateError rejects an operation that is not valid in the session's state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}
