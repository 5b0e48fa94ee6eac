package service

import (
	"context"
	"sync"
	"whosetune/internal/api"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

// fakeStreamingClient implements StreamingClient for testing.
type fakeStreamingClient struct {
	ExchangeCodeFunc       func(ctx context.Context, code string) (*api.TokenResponse, error)
	RefreshTokenFunc       func(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	CurrentUserFunc        func(ctx context.Context, token string) (*api.UserProfile, error)
	ListPlaylistsFunc      func(ctx context.Context, token string, limit, offset int) (*api.PlaylistPage, error)
	CreatePlaylistFunc     func(ctx context.Context, token, userID, name string, public bool) (*api.Playlist, error)
	SetPlaylistPublicFunc  func(ctx context.Context, token, playlistID string, public bool) error
	ListPlaylistTracksFunc func(ctx context.Context, token, playlistID string, limit, offset int) (*api.PlaylistTracksPage, error)
	AddPlaylistItemsFunc   func(ctx context.Context, token, playlistID string, uris []string) error
	CurrentPlaybackFunc    func(ctx context.Context, token string) (*api.PlaybackResponse, error)
	TopTracksFunc          func(ctx context.Context, token, timeRange string, limit int) (*api.TopTracksResponse, error)
}

func (f *fakeStreamingClient) ExchangeCode(ctx context.Context, code string) (*api.TokenResponse, error) {
	if f.ExchangeCodeFunc != nil {
		return f.ExchangeCodeFunc(ctx, code)
	}
	return &api.TokenResponse{}, nil
}

func (f *fakeStreamingClient) RefreshToken(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	if f.RefreshTokenFunc != nil {
		return f.RefreshTokenFunc(ctx, refreshToken)
	}
	return &api.TokenResponse{}, nil
}

func (f *fakeStreamingClient) CurrentUser(ctx context.Context, token string) (*api.UserProfile, error) {
	if f.CurrentUserFunc != nil {
		return f.CurrentUserFunc(ctx, token)
	}
	return &api.UserProfile{}, nil
}

func (f *fakeStreamingClient) ListPlaylists(ctx context.Context, token string, limit, offset int) (*api.PlaylistPage, error) {
	if f.ListPlaylistsFunc != nil {
		return f.ListPlaylistsFunc(ctx, token, limit, offset)
	}
	return &api.PlaylistPage{}, nil
}

func (f *fakeStreamingClient) CreatePlaylist(ctx context.Context, token, userID, name string, public bool) (*api.Playlist, error) {
	if f.CreatePlaylistFunc != nil {
		return f.CreatePlaylistFunc(ctx, token, userID, name, public)
	}
	return &api.Playlist{}, nil
}

func (f *fakeStreamingClient) SetPlaylistPublic(ctx context.Context, token, playlistID string, public bool) error {
	if f.SetPlaylistPublicFunc != nil {
		return f.SetPlaylistPublicFunc(ctx, token, playlistID, public)
	}
	return nil
}

func (f *fakeStreamingClient) ListPlaylistTracks(ctx context.Context, token, playlistID string, limit, offset int) (*api.PlaylistTracksPage, error) {
	if f.ListPlaylistTracksFunc != nil {
		return f.ListPlaylistTracksFunc(ctx, token, playlistID, limit, offset)
	}
	return &api.PlaylistTracksPage{}, nil
}

func (f *fakeStreamingClient) AddPlaylistItems(ctx context.Context, token, playlistID string, uris []string) error {
	if f.AddPlaylistItemsFunc != nil {
		return f.AddPlaylistItemsFunc(ctx, token, playlistID, uris)
	}
	return nil
}

func (f *fakeStreamingClient) CurrentPlayback(ctx context.Context, token string) (*api.PlaybackResponse, error) {
	if f.CurrentPlaybackFunc != nil {
		return f.CurrentPlaybackFunc(ctx, token)
	}
	return nil, nil
}

func (f *fakeStreamingClient) TopTracks(ctx context.Context, token, timeRange string, limit int) (*api.TopTracksResponse, error) {
	if f.TopTracksFunc != nil {
		return f.TopTracksFunc(ctx, token, timeRange, limit)
	}
	return &api.TopTracksResponse{}, nil
}

// fakeSlots is an in-memory CredentialSlots.
type fakeSlots struct {
	mu    sync.Mutex
	creds map[string]domain.Credential
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{creds: make(map[string]domain.Credential)}
}

func (f *fakeSlots) Get(ctx context.Context, playerID string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[playerID]
	if !ok {
		return nil, domain.ErrCredentialMissing
	}
	out := cred
	return &out, nil
}

func (f *fakeSlots) Upsert(ctx context.Context, cred *domain.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[cred.PlayerID] = *cred
	return nil
}

func (f *fakeSlots) Delete(ctx context.Context, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, playerID)
	return nil
}

func (f *fakeSlots) All(ctx context.Context) ([]domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Credential, 0, len(f.creds))
	for _, cred := range f.creds {
		out = append(out, cred)
	}
	return out, nil
}

// fakePending is an in-memory PendingState.
type fakePending struct {
	mu      sync.Mutex
	entries map[string]domain.PendingSubmission
}

func newFakePending() *fakePending {
	return &fakePending{entries: make(map[string]domain.PendingSubmission)}
}

func (f *fakePending) All() (map[string]domain.PendingSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.PendingSubmission, len(f.entries))
	for name, sub := range f.entries {
		out[name] = sub
	}
	return out, nil
}

func (f *fakePending) Put(displayName string, sub domain.PendingSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[displayName] = sub
	return nil
}

func (f *fakePending) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]domain.PendingSubmission)
	return nil
}

// fakeScores is an in-memory ScoreSink.
type fakeScores struct {
	mu     sync.Mutex
	points map[string]int
}

func newFakeScores() *fakeScores {
	return &fakeScores{points: make(map[string]int)}
}

func (f *fakeScores) AddPoint(displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[displayName]++
	return nil
}

func (f *fakeScores) get(displayName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.points[displayName]
}
