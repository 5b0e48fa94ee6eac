package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
	"whosetune/internal/api"
	"whosetune/internal/config"
	"whosetune/internal/constants"
	"whosetune/internal/domain"
	"whosetune/internal/middleware"
	"whosetune/internal/repository"
	"whosetune/internal/service"
	"whosetune/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type GameServer struct {
	cfg         *config.Config
	spotify     *api.SpotifyClient
	creds       *service.CredentialService
	registry    *service.PlaylistRegistry
	ledger      *service.ContributionLedger
	aggregator  *service.TopTrackAggregator
	guesses     *service.GuessEngine
	leaderboard *repository.LeaderboardStore
	sessions    *session.Manager
	logger      zerolog.Logger

	stateMu sync.Mutex
	states  map[string]time.Time
}

func NewGameServer(
	cfg *config.Config,
	spotify *api.SpotifyClient,
	creds *service.CredentialService,
	registry *service.PlaylistRegistry,
	ledger *service.ContributionLedger,
	aggregator *service.TopTrackAggregator,
	guesses *service.GuessEngine,
	leaderboard *repository.LeaderboardStore,
	sessions *session.Manager,
	logger zerolog.Logger,
) *GameServer {
	return &GameServer{
		cfg:         cfg,
		spotify:     spotify,
		creds:       creds,
		registry:    registry,
		ledger:      ledger,
		aggregator:  aggregator,
		guesses:     guesses,
		leaderboard: leaderboard,
		sessions:    sessions,
		logger:      logger,
		states:      make(map[string]time.Time),
	}
}

func (s *GameServer) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/auth/login", s.handleLogin)
	r.Get("/auth/callback", s.handleCallback)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/", s.handleHome)
	r.Get("/api/leaderboard", s.handleLeaderboard)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(s.sessions))

		r.Post("/api/tracks", s.handleSubmitTrack)
		r.Post("/api/top-tracks", s.handleSubmitTopTracks)
		r.Post("/api/tracks/manual", s.handleManualTracks)
		r.Post("/api/submit-all", s.handleSubmitAll)
		r.Get("/api/playlist", s.handlePlaylistSnapshot)
		r.Get("/game", s.handleGameView)
		r.Post("/api/guess", s.handleGuess)
		r.Post("/api/host", s.handleSetHost)
		r.Post("/api/leaderboard/reset", s.handleLeaderboardReset)
		r.Get("/api/current-song", s.handleCurrentSong)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the failure taxonomy to distinguishable responses so
// players always learn which condition rejected their action.
func (s *GameServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "reauthorize_required", "reason": "credential_missing"})
	case errors.Is(err, domain.ErrCredentialRefreshFailed):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "reauthorize_required", "reason": "credential_refresh_failed"})
	case errors.Is(err, domain.ErrInsufficientScope):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "reauthorize_required", "reason": "insufficient_scope"})
	case errors.Is(err, domain.ErrInvalidTrackReference):
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_track_reference"})
	case errors.Is(err, domain.ErrPlaylistUnresolvable):
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "playlist_unresolvable"})
	case errors.Is(err, domain.ErrExternalAPI):
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "external_api_error"})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "internal_error"})
	}
}

func (s *GameServer) issueState() (string, error) {
	state, err := newStateNonce()
	if err != nil {
		return "", err
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for nonce, issued := range s.states {
		if time.Since(issued) > constants.OAuthStateTTL {
			delete(s.states, nonce)
		}
	}
	s.states[state] = time.Now()
	return state, nil
}

func (s *GameServer) consumeState(state string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Since(issued) <= constants.OAuthStateTTL
}
