// Package queue holds the per-session track list. Tracks are only ever
// appended and the cursor only moves forward, so already played entries stay
// available for "now playing" lookups after an advance.
package queue

import (
	"slices"
	"sync"

	"github.com/dewmguy/discordmusic/internal/music/sources"
)

type Queue struct {
	mu     sync.RWMutex
	tracks []sources.Track
	cursor int
}

func New() *Queue {
	return &Queue{tracks: make([]sources.Track, 0)}
}

// Append adds tracks at the tail and returns the new length.
func (q *Queue) Append(tracks ...sources.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, tracks...)
	return len(q.tracks)
}

// Current returns the track at the cursor, or false once the queue is exhausted.
func (q *Queue) Current() (sources.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.cursor >= len(q.tracks) {
		return sources.Track{}, false
	}
	return q.tracks[q.cursor], true
}

// Advance moves the cursor one step forward. The cursor never passes the
// end of the queue, so a track appended to an exhausted queue becomes current.
func (q *Queue) Advance() (sources.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < len(q.tracks) {
		q.cursor++
	}
	if q.cursor >= len(q.tracks) {
		return sources.Track{}, false
	}
	return q.tracks[q.cursor], true
}

func (q *Queue) Cursor() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cursor
}

// Tracks returns a copy of every track, played ones included.
func (q *Queue) Tracks() []sources.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.tracks)
}

// Upcoming returns a copy of the tracks after the cursor.
func (q *Queue) Upcoming() []sources.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.cursor+1 >= len(q.tracks) {
		return nil
	}
	return slices.Clone(q.tracks[q.cursor+1:])
}
