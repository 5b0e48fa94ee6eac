package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
	"whosetune/internal/constants"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

// Entry is one (track, contributor) pair in the combined submission order.
type Entry struct {
	Track       domain.TrackRef
	Contributor string
}

// TopTrackAggregator collects each player's five submitted tracks in memory
// and in the durable pending-submissions document, then produces the
// combined order for bulk insertion. The durable copy survives a restart
// within the game day; the in-memory copy wins on conflict.
type TopTrackAggregator struct {
	client StreamingClient
	store  PendingState
	logger zerolog.Logger

	mu     sync.Mutex
	memory map[string]domain.PendingSubmission
}

func NewTopTrackAggregator(client StreamingClient, store PendingState, logger zerolog.Logger) *TopTrackAggregator {
	return &TopTrackAggregator{
		client: client,
		store:  store,
		logger: logger,
		memory: make(map[string]domain.PendingSubmission),
	}
}

// FetchTop returns the player's top five tracks from their listening
// history. An API error or an empty history both signal ErrNoTopTracks so
// the caller can offer the manual-entry path instead of retrying.
func (a *TopTrackAggregator) FetchTop(ctx context.Context, cred *domain.Credential) ([]domain.TrackRef, error) {
	top, err := a.client.TopTracks(ctx, cred.AccessToken, constants.TopTracksTimeRange, domain.TrackSubmissionCount)
	if err != nil {
		a.logger.Warn().Err(err).Str("player_id", cred.PlayerID).Msg("top tracks fetch failed, manual entry fallback")
		return nil, fmt.Errorf("%w: %v", domain.ErrNoTopTracks, err)
	}
	if len(top.Items) == 0 {
		return nil, domain.ErrNoTopTracks
	}

	refs := make([]domain.TrackRef, 0, len(top.Items))
	for _, track := range top.Items {
		ref, err := domain.NormalizeTrackURL(track.ExternalURLs.Spotify)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, domain.ErrNoTopTracks
	}
	return refs, nil
}

// Submit stores a contributor's batch under both the in-memory map and the
// durable document.
func (a *TopTrackAggregator) Submit(displayName string, tracks []domain.TrackRef) error {
	if len(tracks) != domain.TrackSubmissionCount {
		return fmt.Errorf("%w: expected %d tracks, got %d", domain.ErrInvalidTrackReference, domain.TrackSubmissionCount, len(tracks))
	}

	sub := domain.PendingSubmission{Tracks: tracks, AddedAt: time.Now()}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory[displayName] = sub
	if err := a.store.Put(displayName, sub); err != nil {
		return err
	}
	a.logger.Info().Str("contributor", displayName).Int("tracks", len(tracks)).Msg("pending submission stored")
	return nil
}

// InterleaveAndShuffle merges the durable and in-memory maps (memory wins
// per contributor), round-robins over contributors in stable name order,
// then fully shuffles the result. Both maps are cleared before returning;
// the lock is held throughout so no partial-clear state is observable.
//
// The interleave is redundant once the shuffle lands, but it is kept as the
// game's best-effort fairness pass over the pre-shuffle order.
func (a *TopTrackAggregator) InterleaveAndShuffle() ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged, err := a.store.All()
	if err != nil {
		return nil, err
	}
	for name, sub := range a.memory {
		merged[name] = sub
	}

	names := make([]string, 0, len(merged))
	maxLen := 0
	for name, sub := range merged {
		names = append(names, name)
		if len(sub.Tracks) > maxLen {
			maxLen = len(sub.Tracks)
		}
	}
	sort.Strings(names)

	var entries []Entry
	for round := 0; round < maxLen; round++ {
		for _, name := range names {
			if tracks := merged[name].Tracks; round < len(tracks) {
				entries = append(entries, Entry{Track: tracks[round], Contributor: name})
			}
		}
	}

	rand.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})

	a.memory = make(map[string]domain.PendingSubmission)
	if err := a.store.Clear(); err != nil {
		return nil, err
	}

	a.logger.Info().Int("entries", len(entries)).Int("contributors", len(names)).Msg("combined submission order produced")
	return entries, nil
}

// Pending reports the contributors with an uncommitted batch, durable and
// in-memory merged.
func (a *TopTrackAggregator) Pending() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged, err := a.store.All()
	if err != nil {
		return nil, err
	}
	for name, sub := range a.memory {
		merged[name] = sub
	}
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
