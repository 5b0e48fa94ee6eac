package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"whosetune/internal/api"
	"whosetune/internal/constants"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CredentialService resolves a usable access credential for a player
// identity, refreshing expired tokens in place and discarding credentials
// whose granted scopes no longer cover the required set.
type CredentialService struct {
	client        StreamingClient
	slots         CredentialSlots
	requiredScope []string
	logger        zerolog.Logger
}

func NewCredentialService(client StreamingClient, slots CredentialSlots, requiredScope []string, logger zerolog.Logger) *CredentialService {
	return &CredentialService{client: client, slots: slots, requiredScope: requiredScope, logger: logger}
}

// Authorize exchanges an OAuth code, fetches the account profile, and
// populates the player's durable credential slot. The credential is
// discarded up front when the grant does not cover the required scopes.
func (s *CredentialService) Authorize(ctx context.Context, code string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	token, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Msg("code exchange failed")
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	profile, err := s.client.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch profile after authorization")
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	cred := credentialFromToken(profile.ID, profile.DisplayName, token)
	if !cred.HasScopes(s.requiredScope) {
		s.logger.Warn().Str("player_id", profile.ID).Strs("granted", cred.Scopes).Msg("authorization grant missing required scopes")
		return nil, domain.ErrInsufficientScope
	}

	if err := s.slots.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	s.logger.Info().Str("player_id", profile.ID).Str("display_name", profile.DisplayName).Msg("player authorized")
	return &domain.Player{ID: profile.ID, DisplayName: profile.DisplayName}, nil
}

// Resolve returns a usable credential for the player, refreshing it first
// when expired. Missing slots, failed refreshes, and insufficient scopes
// each surface as their own taxonomy member so callers can re-trigger
// authorization with a specific message.
func (s *CredentialService) Resolve(ctx context.Context, playerID string) (*domain.Credential, error) {
	cred, err := s.slots.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if !cred.HasScopes(s.requiredScope) {
		s.logger.Warn().Str("player_id", playerID).Msg("stored credential missing required scopes, discarding")
		if delErr := s.slots.Delete(ctx, playerID); delErr != nil {
			s.logger.Error().Err(delErr).Str("player_id", playerID).Msg("failed to discard invalid credential")
		}
		return nil, domain.ErrInsufficientScope
	}

	if cred.Expired() {
		if cred, err = s.refresh(ctx, cred); err != nil {
			return nil, err
		}
	}
	return cred, nil
}

// ResolveAsOther looks up a different player's durable slot, which is what
// lets one browsing session read another player's live playback. It never
// falls back to the calling session's own credential; callers do that
// explicitly so the two cases stay distinguishable.
func (s *CredentialService) ResolveAsOther(ctx context.Context, playerID string) (*domain.Credential, error) {
	return s.Resolve(ctx, playerID)
}

// RefreshAll refreshes every stored credential concurrently. Startup
// warm-up; individual failures are logged, not fatal.
func (s *CredentialService) RefreshAll(ctx context.Context) {
	creds, err := s.slots.All(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list credential slots")
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, cred := range creds {
		g.Go(func() error {
			refreshCtx, cancel := context.WithTimeout(gCtx, constants.ExternalAPITimeout)
			defer cancel()
			if _, err := s.refresh(refreshCtx, &cred); err != nil {
				s.logger.Warn().Err(err).Str("player_id", cred.PlayerID).Msg("startup credential refresh failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().Int("count", len(creds)).Msg("credential warm-up completed")
}

func (s *CredentialService) refresh(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	token, err := s.client.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.Warn().Err(err).Str("player_id", cred.PlayerID).Msg("token refresh failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialRefreshFailed, err)
	}

	refreshed := credentialFromToken(cred.PlayerID, cred.DisplayName, token)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = cred.Scopes
	}

	if err := s.slots.Upsert(ctx, refreshed); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("player_id", cred.PlayerID).Time("expires_at", refreshed.ExpiresAt).Msg("credential refreshed")
	return refreshed, nil
}

func credentialFromToken(playerID, displayName string, token *api.TokenResponse) *domain.Credential {
	return &domain.Credential{
		PlayerID:     playerID,
		DisplayName:  displayName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       strings.Fields(token.Scope),
		ExpiresAt:    time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
}
