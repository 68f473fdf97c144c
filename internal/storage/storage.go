// Package storage keeps per-guild bot state in a JSON backed key-value file:
// the recent command history and the slash command hashes from the last sync.
package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/datastore"
)

const commandHistoryLimit = 20

type Storage struct {
	ds *datastore.DataStore
	// mu serializes read-modify-write cycles on guild records.
	mu sync.Mutex
}

type CommandHistoryRecord struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildName   string    `json:"guild_name"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Command     string    `json:"command"`
	Param       string    `json:"param"`
	Datetime    time.Time `json:"datetime"`
}

// Record is everything stored for one guild.
type Record struct {
	CommandsHistoryList []CommandHistoryRecord `json:"cmd_history"`
	// CommandHashes maps a slash command name to its definition hash.
	CommandHashes map[string]string `json:"cmd_hashes"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("open datastore %s: %w", filePath, err)
	}
	return &Storage{ds: ds}, nil
}

// Close flushes the store to disk.
func (s *Storage) Close() error {
	return s.ds.Close()
}

// load returns the guild's record, or an empty one for a guild never seen.
// Callers hold mu.
func (s *Storage) load(guildID string) (Record, error) {
	rec := Record{}
	raw, ok := s.ds.Get(guildID)
	if ok {
		// records read back from disk are generic maps until re-decoded
		data, err := json.Marshal(raw)
		if err != nil {
			return Record{}, fmt.Errorf("encode record for guild %s: %w", guildID, err)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return Record{}, fmt.Errorf("decode record for guild %s: %w", guildID, err)
		}
	}
	if rec.CommandHashes == nil {
		rec.CommandHashes = map[string]string{}
	}
	rec.CommandsHistoryList = trimHistory(rec.CommandsHistoryList)
	return rec, nil
}

func (s *Storage) view(guildID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(guildID)
}

// update applies fn to the guild's record and stores the result.
func (s *Storage) update(guildID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(guildID)
	if err != nil {
		return err
	}
	fn(&rec)
	s.ds.Add(guildID, &rec)
	return nil
}

func trimHistory(list []CommandHistoryRecord) []CommandHistoryRecord {
	if over := len(list) - commandHistoryLimit; over > 0 {
		return list[over:]
	}
	return list
}
