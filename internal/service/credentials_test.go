package service

import (
	"context"
	"errors"
	"testing"
	"time"
	"whosetune/internal/api"
	"whosetune/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requiredScope = []string{"user-read-playback-state", "playlist-modify-public"}

func validCredential(playerID string, expiresAt time.Time) domain.Credential {
	return domain.Credential{
		PlayerID:     playerID,
		DisplayName:  "Player " + playerID,
		AccessToken:  "access-" + playerID,
		RefreshToken: "refresh-" + playerID,
		Scopes:       requiredScope,
		ExpiresAt:    expiresAt,
	}
}

func TestResolve_Missing(t *testing.T) {
	svc := NewCredentialService(&fakeStreamingClient{}, newFakeSlots(), requiredScope, testLogger)

	_, err := svc.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
}

func TestResolve_Valid(t *testing.T) {
	slots := newFakeSlots()
	cred := validCredential("p1", time.Now().Add(time.Hour))
	require.NoError(t, slots.Upsert(context.Background(), &cred))

	svc := NewCredentialService(&fakeStreamingClient{}, slots, requiredScope, testLogger)

	got, err := svc.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "access-p1", got.AccessToken)
}

func TestResolve_RefreshOnExpiry_PersistsRefreshedValue(t *testing.T) {
	slots := newFakeSlots()
	cred := validCredential("p1", time.Now().Add(-time.Minute))
	require.NoError(t, slots.Upsert(context.Background(), &cred))

	client := &fakeStreamingClient{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
			assert.Equal(t, "refresh-p1", refreshToken)
			return &api.TokenResponse{AccessToken: "fresh-token", ExpiresIn: 3600}, nil
		},
	}
	svc := NewCredentialService(client, slots, requiredScope, testLogger)

	got, err := svc.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", got.AccessToken)
	assert.Equal(t, "refresh-p1", got.RefreshToken, "refresh token kept when provider omits a new one")
	assert.Equal(t, requiredScope, got.Scopes, "scopes kept when provider omits them")

	stored, err := slots.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.AccessToken, "refreshed value written back to the durable slot")
	assert.True(t, stored.ExpiresAt.After(time.Now()))
}

func TestResolve_RefreshFailure(t *testing.T) {
	slots := newFakeSlots()
	cred := validCredential("p1", time.Now().Add(-time.Minute))
	require.NoError(t, slots.Upsert(context.Background(), &cred))

	client := &fakeStreamingClient{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
			return nil, errors.New("network down")
		},
	}
	svc := NewCredentialService(client, slots, requiredScope, testLogger)

	_, err := svc.Resolve(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrCredentialRefreshFailed)
}

func TestResolve_InsufficientScope_DiscardsSlot(t *testing.T) {
	slots := newFakeSlots()
	cred := validCredential("p1", time.Now().Add(time.Hour))
	cred.Scopes = []string{"user-read-playback-state"} // missing playlist-modify-public
	require.NoError(t, slots.Upsert(context.Background(), &cred))

	svc := NewCredentialService(&fakeStreamingClient{}, slots, requiredScope, testLogger)

	_, err := svc.Resolve(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrInsufficientScope)

	_, err = slots.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrCredentialMissing, "invalid credential discarded")
}

func TestResolveAsOther_DoesNotFallBack(t *testing.T) {
	slots := newFakeSlots()
	viewer := validCredential("viewer", time.Now().Add(time.Hour))
	require.NoError(t, slots.Upsert(context.Background(), &viewer))

	svc := NewCredentialService(&fakeStreamingClient{}, slots, requiredScope, testLogger)

	_, err := svc.ResolveAsOther(context.Background(), "host")
	assert.ErrorIs(t, err, domain.ErrCredentialMissing, "another player's absent slot never falls back silently")
}

func TestAuthorize_StoresSlot(t *testing.T) {
	slots := newFakeSlots()
	client := &fakeStreamingClient{
		ExchangeCodeFunc: func(ctx context.Context, code string) (*api.TokenResponse, error) {
			assert.Equal(t, "code-123", code)
			return &api.TokenResponse{
				AccessToken:  "access",
				RefreshToken: "refresh",
				Scope:        "user-read-playback-state playlist-modify-public",
				ExpiresIn:    3600,
			}, nil
		},
		CurrentUserFunc: func(ctx context.Context, token string) (*api.UserProfile, error) {
			return &api.UserProfile{ID: "alice-id", DisplayName: "Alice"}, nil
		},
	}
	svc := NewCredentialService(client, slots, requiredScope, testLogger)

	player, err := svc.Authorize(context.Background(), "code-123")
	require.NoError(t, err)
	assert.Equal(t, "alice-id", player.ID)
	assert.Equal(t, "Alice", player.DisplayName)

	stored, err := slots.Get(context.Background(), "alice-id")
	require.NoError(t, err)
	assert.Equal(t, "access", stored.AccessToken)
}

func TestAuthorize_InsufficientScopeNotStored(t *testing.T) {
	slots := newFakeSlots()
	client := &fakeStreamingClient{
		ExchangeCodeFunc: func(ctx context.Context, code string) (*api.TokenResponse, error) {
			return &api.TokenResponse{AccessToken: "access", Scope: "user-read-playback-state", ExpiresIn: 3600}, nil
		},
		CurrentUserFunc: func(ctx context.Context, token string) (*api.UserProfile, error) {
			return &api.UserProfile{ID: "bob-id", DisplayName: "Bob"}, nil
		},
	}
	svc := NewCredentialService(client, slots, requiredScope, testLogger)

	_, err := svc.Authorize(context.Background(), "code")
	assert.ErrorIs(t, err, domain.ErrInsufficientScope)

	_, err = slots.Get(context.Background(), "bob-id")
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
}
