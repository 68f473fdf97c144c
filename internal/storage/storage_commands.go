package storage

import (
	"maps"
	"time"
)

// AppendCommandToHistory adds entry to the guild's history, dropping the
// oldest entries past the limit.
func (s *Storage) AppendCommandToHistory(guildID string, entry CommandHistoryRecord) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsHistoryList = trimHistory(append(r.CommandsHistoryList, entry))
	})
}

// SetCommand records one command execution, stamped with the current time.
func (s *Storage) SetCommand(guildID, channelID, channelName, guildName, userID, username, command, param string) error {
	return s.AppendCommandToHistory(guildID, CommandHistoryRecord{
		ChannelID:   channelID,
		ChannelName: channelName,
		GuildName:   guildName,
		UserID:      userID,
		Username:    username,
		Command:     command,
		Param:       param,
		Datetime:    time.Now(),
	})
}

// FetchCommandHistory returns the guild's history, oldest first.
func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	rec, err := s.view(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsHistoryList, nil
}

// CommandHashes returns a copy of the hashes stored at the last sync.
func (s *Storage) CommandHashes(guildID string) (map[string]string, error) {
	rec, err := s.view(guildID)
	if err != nil {
		return nil, err
	}
	return maps.Clone(rec.CommandHashes), nil
}

func (s *Storage) SetCommandHashes(guildID string, hashes map[string]string) error {
	return s.update(guildID, func(r *Record) {
		r.CommandHashes = maps.Clone(hashes)
		if r.CommandHashes == nil {
			r.CommandHashes = map[string]string{}
		}
	})
}
