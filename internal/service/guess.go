package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

type quotaKey struct {
	sessionID string
	track     domain.TrackRef
}

// GuessEngine decides whether a guess is accepted, scores it against the
// contribution ledger, and enforces the per-session, per-track quota. Quota
// state lives in memory only: it dies with the process, exactly when the
// server epoch invalidates every session.
type GuessEngine struct {
	creds      *CredentialService
	client     StreamingClient
	registry   *PlaylistRegistry
	ledger     *ContributionLedger
	scores     ScoreSink
	guessLimit int
	logger     zerolog.Logger

	mu    sync.Mutex
	quota map[quotaKey]int
}

func NewGuessEngine(creds *CredentialService, client StreamingClient, registry *PlaylistRegistry, ledger *ContributionLedger, scores ScoreSink, guessLimit int, logger zerolog.Logger) *GuessEngine {
	return &GuessEngine{
		creds:      creds,
		client:     client,
		registry:   registry,
		ledger:     ledger,
		scores:     scores,
		guessLimit: guessLimit,
		logger:     logger,
		quota:      make(map[quotaKey]int),
	}
}

// Guess resolves the host's live playback and compares the submitted name
// against the recorded contributors of the playing track. The host's
// credential is preferred; the viewer's own is the explicit fallback, and
// the outcome says which was used so the UI can tell the player.
func (e *GuessEngine) Guess(ctx context.Context, sessionID, viewerID, guessName string) (*domain.GuessOutcome, error) {
	cred, usedViewer, err := e.playbackCredential(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	playback, err := e.client.CurrentPlayback(ctx, cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("reading live playback: %w", err)
	}
	if playback == nil || !playback.IsPlaying || playback.Item == nil {
		return &domain.GuessOutcome{Result: domain.GuessNoActivePlayback, UsedViewerPlayback: usedViewer}, nil
	}

	ref, err := domain.NormalizeTrackURL(playback.Item.ExternalURLs.Spotify)
	if err != nil {
		return nil, err
	}
	contributors := e.ledger.ContributorsOf(ref)

	key := quotaKey{sessionID: sessionID, track: ref}
	e.mu.Lock()
	if e.quota[key] >= e.guessLimit {
		e.mu.Unlock()
		return &domain.GuessOutcome{Result: domain.GuessQuotaExceeded, UsedViewerPlayback: usedViewer}, nil
	}
	e.quota[key]++
	e.mu.Unlock()

	if slices.Contains(contributors, guessName) {
		if err := e.scores.AddPoint(guessName); err != nil {
			return nil, fmt.Errorf("persisting score: %w", err)
		}
		e.logger.Info().Str("session", sessionID).Str("guess", guessName).Str("track", string(ref)).Msg("correct guess")
		return &domain.GuessOutcome{Result: domain.GuessCorrect, Contributors: contributors, UsedViewerPlayback: usedViewer}, nil
	}

	e.logger.Info().Str("session", sessionID).Str("guess", guessName).Str("track", string(ref)).Msg("incorrect guess")
	return &domain.GuessOutcome{Result: domain.GuessIncorrect, Contributors: contributors, UsedViewerPlayback: usedViewer}, nil
}

// CurrentSong reports the host's live playback without touching quota or
// scores. Contributors are deliberately not included.
func (e *GuessEngine) CurrentSong(ctx context.Context, viewerID string) (*domain.PlaybackState, bool, error) {
	cred, usedViewer, err := e.playbackCredential(ctx, viewerID)
	if err != nil {
		return nil, false, err
	}

	playback, err := e.client.CurrentPlayback(ctx, cred.AccessToken)
	if err != nil {
		return nil, usedViewer, fmt.Errorf("reading live playback: %w", err)
	}
	if playback == nil || !playback.IsPlaying || playback.Item == nil {
		return &domain.PlaybackState{Playing: false}, usedViewer, nil
	}

	ref, err := domain.NormalizeTrackURL(playback.Item.ExternalURLs.Spotify)
	if err != nil {
		return nil, usedViewer, err
	}

	state := &domain.PlaybackState{
		Playing:  true,
		TrackRef: ref,
		TrackID:  playback.Item.ID,
		Name:     playback.Item.Name,
	}
	for _, artist := range playback.Item.Artists {
		state.Artists = append(state.Artists, artist.Name)
	}
	if len(playback.Item.Album.Images) > 0 {
		state.AlbumArt = playback.Item.Album.Images[0].URL
	}
	return state, usedViewer, nil
}

func (e *GuessEngine) playbackCredential(ctx context.Context, viewerID string) (*domain.Credential, bool, error) {
	if hostID, ok := e.registry.Host(); ok {
		cred, err := e.creds.ResolveAsOther(ctx, hostID)
		if err == nil {
			return cred, false, nil
		}
		if !errors.Is(err, domain.ErrCredentialMissing) &&
			!errors.Is(err, domain.ErrCredentialRefreshFailed) &&
			!errors.Is(err, domain.ErrInsufficientScope) {
			return nil, false, err
		}
		e.logger.Warn().Err(err).Str("host_id", hostID).Msg("host credential unavailable, using viewer's own playback")
	}

	cred, err := e.creds.Resolve(ctx, viewerID)
	if err != nil {
		return nil, false, err
	}
	return cred, true, nil
}
