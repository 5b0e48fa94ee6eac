package service

import (
	"context"
	"whosetune/internal/api"
	"whosetune/internal/domain"
)

// StreamingClient is the slice of the streaming provider's API the game
// consumes. *api.SpotifyClient satisfies it; tests substitute fakes.
type StreamingClient interface {
	ExchangeCode(ctx context.Context, code string) (*api.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	CurrentUser(ctx context.Context, token string) (*api.UserProfile, error)
	ListPlaylists(ctx context.Context, token string, limit, offset int) (*api.PlaylistPage, error)
	CreatePlaylist(ctx context.Context, token, userID, name string, public bool) (*api.Playlist, error)
	SetPlaylistPublic(ctx context.Context, token, playlistID string, public bool) error
	ListPlaylistTracks(ctx context.Context, token, playlistID string, limit, offset int) (*api.PlaylistTracksPage, error)
	AddPlaylistItems(ctx context.Context, token, playlistID string, uris []string) error
	CurrentPlayback(ctx context.Context, token string) (*api.PlaybackResponse, error)
	TopTracks(ctx context.Context, token, timeRange string, limit int) (*api.TopTracksResponse, error)
}

// CredentialSlots is the durable per-player credential storage consumed by
// the credential service.
type CredentialSlots interface {
	Get(ctx context.Context, playerID string) (*domain.Credential, error)
	Upsert(ctx context.Context, cred *domain.Credential) error
	Delete(ctx context.Context, playerID string) error
	All(ctx context.Context) ([]domain.Credential, error)
}

// PendingState is the durable half of the pending-submissions map.
type PendingState interface {
	All() (map[string]domain.PendingSubmission, error)
	Put(displayName string, sub domain.PendingSubmission) error
	Clear() error
}

// ScoreSink is where accepted guesses land.
type ScoreSink interface {
	AddPoint(displayName string) error
}
