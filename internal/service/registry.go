package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"whosetune/internal/api"
	"whosetune/internal/constants"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

// The provider caps owned-playlist listings at a smaller page than track
// listings.
const playlistListPageSize = 50

// PlaylistRegistry finds or creates the day-keyed shared playlist and
// tracks which player's playback is the game's ground truth. The current
// playlist is re-resolved on every call, never memoized: the calendar day
// boundary and concurrent external edits are out of this process's control.
type PlaylistRegistry struct {
	client StreamingClient
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	hostID     string
	hostPinned bool
}

func NewPlaylistRegistry(client StreamingClient, logger zerolog.Logger) *PlaylistRegistry {
	return &PlaylistRegistry{client: client, logger: logger, now: time.Now}
}

// EnsureCurrent resolves today's shared playlist for the authenticated
// account, creating it when absent and fixing visibility when present but
// not public. The resolving account becomes host unless a host has been
// pinned explicitly.
func (r *PlaylistRegistry) EnsureCurrent(ctx context.Context, cred *domain.Credential) (*domain.SharedPlaylist, error) {
	name := domain.PlaylistNameFor(r.now())

	for offset := 0; ; offset += playlistListPageSize {
		page, err := r.client.ListPlaylists(ctx, cred.AccessToken, playlistListPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: listing playlists: %v", domain.ErrPlaylistUnresolvable, err)
		}
		for _, pl := range page.Items {
			if pl.Name != name {
				continue
			}
			if !pl.Public {
				// Idempotent, safe to issue on every resolution.
				if err := r.client.SetPlaylistPublic(ctx, cred.AccessToken, pl.ID, true); err != nil {
					r.logger.Warn().Err(err).Str("playlist_id", pl.ID).Msg("visibility fix failed")
				}
			}
			r.recordHost(pl.Owner.ID)
			r.logger.Debug().Str("playlist_id", pl.ID).Str("name", name).Msg("adopted existing shared playlist")
			return &domain.SharedPlaylist{
				ID:         pl.ID,
				OwnerID:    pl.Owner.ID,
				Name:       name,
				Public:     true,
				ResolvedAt: r.now(),
			}, nil
		}
		if len(page.Items) < playlistListPageSize {
			break
		}
	}

	created, err := r.client.CreatePlaylist(ctx, cred.AccessToken, cred.PlayerID, name, true)
	if err != nil {
		return nil, fmt.Errorf("%w: creating playlist: %v", domain.ErrPlaylistUnresolvable, err)
	}
	r.recordHost(cred.PlayerID)
	r.logger.Info().Str("playlist_id", created.ID).Str("name", name).Str("owner", cred.PlayerID).Msg("created shared playlist")
	return &domain.SharedPlaylist{
		ID:         created.ID,
		OwnerID:    cred.PlayerID,
		Name:       name,
		Public:     true,
		ResolvedAt: r.now(),
	}, nil
}

// Contains paginates the playlist's full track listing and tests membership
// by the provider's stable track id, not by URL.
func (r *PlaylistRegistry) Contains(ctx context.Context, cred *domain.Credential, playlistID string, ref domain.TrackRef) (bool, error) {
	trackID, err := domain.TrackIDFrom(ref)
	if err != nil {
		return false, err
	}

	for offset := 0; ; offset += constants.PlaylistPageSize {
		page, err := r.client.ListPlaylistTracks(ctx, cred.AccessToken, playlistID, constants.PlaylistPageSize, offset)
		if err != nil {
			return false, fmt.Errorf("listing playlist tracks: %w", err)
		}
		for _, item := range page.Items {
			if item.Track != nil && item.Track.ID == trackID {
				return true, nil
			}
		}
		if len(page.Items) < constants.PlaylistPageSize {
			return false, nil
		}
	}
}

// Tracks returns the playlist's full track listing across all pages.
func (r *PlaylistRegistry) Tracks(ctx context.Context, cred *domain.Credential, playlistID string) ([]api.Track, error) {
	var tracks []api.Track
	for offset := 0; ; offset += constants.PlaylistPageSize {
		page, err := r.client.ListPlaylistTracks(ctx, cred.AccessToken, playlistID, constants.PlaylistPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("listing playlist tracks: %w", err)
		}
		for _, item := range page.Items {
			if item.Track != nil {
				tracks = append(tracks, *item.Track)
			}
		}
		if len(page.Items) < constants.PlaylistPageSize {
			return tracks, nil
		}
	}
}

// Host returns the player whose live playback is authoritative, when one
// has been recorded.
func (r *PlaylistRegistry) Host() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID, r.hostID != ""
}

// SetHost pins the host explicitly; subsequent playlist resolutions no
// longer reassign it.
func (r *PlaylistRegistry) SetHost(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostID = playerID
	r.hostPinned = true
	r.logger.Info().Str("player_id", playerID).Msg("host pinned")
}

func (r *PlaylistRegistry) recordHost(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hostPinned {
		r.hostID = playerID
	}
}
