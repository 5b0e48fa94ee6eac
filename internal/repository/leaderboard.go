package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LeaderboardStore keeps cumulative scores in one JSON document on local
// storage. Every mutation is a whole-document read-modify-write under a
// single lock; the document is wholly overwritten on every save.
type LeaderboardStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

func NewLeaderboardStore(path string, logger zerolog.Logger) *LeaderboardStore {
	return &LeaderboardStore{path: path, logger: logger}
}

// Reset overwrites the document with an empty score map. Called at process
// start and by the administrative reset action.
func (s *LeaderboardStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(map[string]int{})
}

func (s *LeaderboardStore) Scores() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// AddPoint increments the display name's score by one and persists.
func (s *LeaderboardStore) AddPoint(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores, err := s.read()
	if err != nil {
		return err
	}
	scores[displayName]++
	return s.write(scores)
}

func (s *LeaderboardStore) read() (map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard file: %w", err)
	}
	scores := map[string]int{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &scores); err != nil {
			return nil, fmt.Errorf("failed to parse leaderboard file: %w", err)
		}
	}
	return scores, nil
}

func (s *LeaderboardStore) write(scores map[string]int) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to write leaderboard file")
		return fmt.Errorf("failed to write leaderboard file: %w", err)
	}
	return nil
}
