package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"whosetune/internal/constants"
	"whosetune/internal/domain"
	"whosetune/internal/middleware"
	"whosetune/internal/service"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

func newStateNonce() (string, error) {
	nonce, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	return nonce, nil
}

func (s *GameServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := s.issueState()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scope := strings.Join(s.cfg.RequiredScope, " ")
	http.Redirect(w, r, s.spotify.AuthorizeURL(state, scope), http.StatusFound)
}

func (s *GameServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.consumeState(r.URL.Query().Get("state")) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_state"})
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "authorization_denied"})
		return
	}

	player, err := s.creds.Authorize(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.sessions.Issue(*player)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(constants.SessionTTL),
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *GameServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (s *GameServer) handleHome(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": false, "server_epoch": s.sessions.Epoch()}
	if cookie, err := r.Cookie(constants.SessionCookieName); err == nil {
		if claims, err := s.sessions.Verify(cookie.Value); err == nil {
			resp["authenticated"] = true
			resp["display_name"] = claims.DisplayName
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GameServer) handleSubmitTrack(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var body struct {
		TrackURL string `json:"track_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TrackURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_request"})
		return
	}

	cred, err := s.creds.Resolve(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	outcome, ref, err := s.ledger.RecordAttempt(r.Context(), cred, claims.DisplayName, body.TrackURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if outcome == service.OutcomeAlreadyPresent {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "already_present",
			"track":        string(ref),
			"contributors": s.ledger.ContributorsOf(ref),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "added", "track": string(ref)})
}

func (s *GameServer) handleSubmitTopTracks(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	cred, err := s.creds.Resolve(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	refs, err := s.aggregator.FetchTop(r.Context(), cred)
	if err != nil || len(refs) < domain.TrackSubmissionCount {
		if err != nil && !errors.Is(err, domain.ErrNoTopTracks) {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "manual_entry_required"})
		return
	}

	refs = refs[:domain.TrackSubmissionCount]
	if err := s.aggregator.Submit(claims.DisplayName, refs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "submitted", "tracks": refs})
}

func (s *GameServer) handleManualTracks(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var body struct {
		Tracks []string `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_request"})
		return
	}

	refs := make([]domain.TrackRef, 0, len(body.Tracks))
	for _, raw := range body.Tracks {
		ref, err := domain.NormalizeTrackURL(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if _, err := domain.TrackIDFrom(ref); err != nil {
			s.writeError(w, r, err)
			return
		}
		refs = append(refs, ref)
	}

	if err := s.aggregator.Submit(claims.DisplayName, refs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "submitted", "tracks": refs})
}

func (s *GameServer) handleSubmitAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	cred, err := s.creds.Resolve(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	playlist, err := s.registry.EnsureCurrent(r.Context(), cred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries, err := s.aggregator.InterleaveAndShuffle()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "nothing_pending"})
		return
	}

	added, err := s.ledger.BulkSubmit(r.Context(), cred, playlist.ID, entries)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "submitted", "tracks_added": added})
}

func (s *GameServer) handlePlaylistSnapshot(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	cred, err := s.creds.Resolve(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	playlist, err := s.registry.EnsureCurrent(r.Context(), cred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tracks, err := s.registry.Tracks(r.Context(), cred, playlist.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type trackView struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Artist  string   `json:"artist"`
		URL     string   `json:"url"`
		AddedBy []string `json:"added_by"`
	}
	views := make([]trackView, 0, len(tracks))
	for _, track := range tracks {
		artists := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			artists = append(artists, artist.Name)
		}

		addedBy := []string{service.UnknownContributor}
		if ref, err := domain.NormalizeTrackURL(track.ExternalURLs.Spotify); err == nil {
			if contributors := s.ledger.ContributorsOf(ref); len(contributors) > 0 {
				addedBy = contributors
			}
		}

		views = append(views, trackView{
			ID:      track.ID,
			Name:    track.Name,
			Artist:  strings.Join(artists, ", "),
			URL:     track.ExternalURLs.Spotify,
			AddedBy: addedBy,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"playlist": playlist.Name, "tracks": views})
}

func (s *GameServer) handleGameView(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	cred, err := s.creds.Resolve(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	playlist, err := s.registry.EnsureCurrent(r.Context(), cred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pending, err := s.aggregator.Pending()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	_, hostSet := s.registry.Host()
	writeJSON(w, http.StatusOK, map[string]any{
		"playlist":             playlist.Name,
		"playlist_id":          playlist.ID,
		"host_designated":      hostSet,
		"guess_limit":          s.cfg.GuessLimit,
		"pending_contributors": pending,
	})
}

func (s *GameServer) handleGuess(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	var body struct {
		Guess string `json:"guess"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Guess == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_request"})
		return
	}

	outcome, err := s.guesses.Guess(r.Context(), claims.SessionID, claims.PlayerID, body.Guess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"status":               outcome.Result.String(),
		"used_viewer_playback": outcome.UsedViewerPlayback,
	}
	if outcome.Result == domain.GuessIncorrect {
		contributors := outcome.Contributors
		if len(contributors) == 0 {
			contributors = []string{service.UnknownContributor}
		}
		resp["contributors"] = contributors
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GameServer) handleSetHost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid_request"})
		return
	}
	s.registry.SetHost(body.PlayerID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "host_set"})
}

func (s *GameServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	scores, err := s.leaderboard.Scores()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

func (s *GameServer) handleLeaderboardReset(w http.ResponseWriter, r *http.Request) {
	if err := s.leaderboard.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *GameServer) handleCurrentSong(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())

	state, usedViewer, err := s.guesses.CurrentSong(r.Context(), claims.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !state.Playing {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_active_playback", "used_viewer_playback": usedViewer})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "playing",
		"name":                 state.Name,
		"artists":              state.Artists,
		"album_art":            state.AlbumArt,
		"used_viewer_playback": usedViewer,
	})
}
