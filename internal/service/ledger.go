package service

import (
	"context"
	"fmt"
	"sync"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

type AddOutcome int

const (
	OutcomeAdded AddOutcome = iota
	OutcomeAlreadyPresent
)

// UnknownContributor is rendered when a playlist track has no ledger entry,
// e.g. it was added outside the game.
const UnknownContributor = "Not recorded"

// ContributionLedger maps each canonical track reference to the ordered,
// duplicate-free list of players who attempted to add it. It grows only
// within a game day and is emptied only by a full process reset.
type ContributionLedger struct {
	client   StreamingClient
	registry *PlaylistRegistry
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[domain.TrackRef][]string
}

func NewContributionLedger(client StreamingClient, registry *PlaylistRegistry, logger zerolog.Logger) *ContributionLedger {
	return &ContributionLedger{
		client:   client,
		registry: registry,
		logger:   logger,
		entries:  make(map[domain.TrackRef][]string),
	}
}

// RecordAttempt normalizes the submitted URL, checks the shared playlist,
// and either adds the track or just notes that this contributor tried. The
// two outcomes are user-visible: "song newly added" versus "already there,
// and we noted you tried".
func (l *ContributionLedger) RecordAttempt(ctx context.Context, cred *domain.Credential, contributor, rawURL string) (AddOutcome, domain.TrackRef, error) {
	playlist, err := l.registry.EnsureCurrent(ctx, cred)
	if err != nil {
		return 0, "", err
	}

	ref, err := domain.NormalizeTrackURL(rawURL)
	if err != nil {
		return 0, "", err
	}
	trackID, err := domain.TrackIDFrom(ref)
	if err != nil {
		return 0, "", err
	}

	present, err := l.registry.Contains(ctx, cred, playlist.ID, ref)
	if err != nil {
		return 0, "", err
	}

	if present {
		l.Record(ref, contributor)
		l.logger.Info().Str("track", string(ref)).Str("contributor", contributor).Msg("track already present, attempt recorded")
		return OutcomeAlreadyPresent, ref, nil
	}

	if err := l.client.AddPlaylistItems(ctx, cred.AccessToken, playlist.ID, []string{"spotify:track:" + trackID}); err != nil {
		return 0, "", fmt.Errorf("adding track to playlist: %w", err)
	}
	l.Record(ref, contributor)
	l.logger.Info().Str("track", string(ref)).Str("contributor", contributor).Msg("track added to shared playlist")
	return OutcomeAdded, ref, nil
}

// BulkSubmit inserts the combined submission order into the shared playlist
// in batches, recording every (track, contributor) pair in the ledger. Two
// contributors submitting the same track yields one playlist add attempt
// per occurrence; the provider deduplicates by id.
func (l *ContributionLedger) BulkSubmit(ctx context.Context, cred *domain.Credential, playlistID string, entries []Entry) (int, error) {
	uris := make([]string, 0, len(entries))
	for _, entry := range entries {
		trackID, err := domain.TrackIDFrom(entry.Track)
		if err != nil {
			l.logger.Warn().Str("track", string(entry.Track)).Str("contributor", entry.Contributor).Msg("skipping unparseable track reference")
			continue
		}
		uris = append(uris, "spotify:track:"+trackID)
		l.Record(entry.Track, entry.Contributor)
	}

	const batchSize = 100
	for i := 0; i < len(uris); i += batchSize {
		end := min(i+batchSize, len(uris))
		if err := l.client.AddPlaylistItems(ctx, cred.AccessToken, playlistID, uris[i:end]); err != nil {
			return i, fmt.Errorf("bulk adding tracks: %w", err)
		}
	}

	l.logger.Info().Int("tracks", len(uris)).Msg("bulk submission inserted into shared playlist")
	return len(uris), nil
}

// Record appends the contributor to the track's entry if not already
// present. Concurrent appends to the same key are serialized; a contributor
// is never duplicated for a track.
func (l *ContributionLedger) Record(ref domain.TrackRef, contributor string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.entries[ref] {
		if existing == contributor {
			return
		}
	}
	l.entries[ref] = append(l.entries[ref], contributor)
}

// ContributorsOf returns the recorded contributor list, or nil when the
// track has never been submitted through the game.
func (l *ContributionLedger) ContributorsOf(ref domain.TrackRef) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[ref]
	if len(entry) == 0 {
		return nil
	}
	out := make([]string, len(entry))
	copy(out, entry)
	return out
}
