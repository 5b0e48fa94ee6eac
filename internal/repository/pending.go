package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

type pendingEntry struct {
	Tracks  []string `json:"tracks"`
	AddedAt string   `json:"added_at"`
}

// PendingStore is the durable half of the pending-submissions map: one JSON
// document keyed by display name, wholly overwritten on every save. It uses
// its own lock, independent of the leaderboard's.
type PendingStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

func NewPendingStore(path string, logger zerolog.Logger) *PendingStore {
	return &PendingStore{path: path, logger: logger}
}

func (s *PendingStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(map[string]pendingEntry{})
}

func (s *PendingStore) All() (map[string]domain.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.PendingSubmission, len(entries))
	for name, e := range entries {
		tracks := make([]domain.TrackRef, len(e.Tracks))
		for i, t := range e.Tracks {
			tracks[i] = domain.TrackRef(t)
		}
		addedAt, _ := time.Parse(time.RFC3339, e.AddedAt)
		out[name] = domain.PendingSubmission{Tracks: tracks, AddedAt: addedAt}
	}
	return out, nil
}

func (s *PendingStore) Put(displayName string, sub domain.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	tracks := make([]string, len(sub.Tracks))
	for i, t := range sub.Tracks {
		tracks[i] = string(t)
	}
	entries[displayName] = pendingEntry{Tracks: tracks, AddedAt: sub.AddedAt.Format(time.RFC3339)}
	return s.write(entries)
}

func (s *PendingStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(map[string]pendingEntry{})
}

func (s *PendingStore) read() (map[string]pendingEntry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]pendingEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending-submissions file: %w", err)
	}
	entries := map[string]pendingEntry{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse pending-submissions file: %w", err)
		}
	}
	return entries, nil
}

func (s *PendingStore) write(entries map[string]pendingEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode pending submissions: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to write pending-submissions file")
		return fmt.Errorf("failed to write pending-submissions file: %w", err)
	}
	return nil
}
