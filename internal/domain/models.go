package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Player struct {
	ID          string
	DisplayName string
}

// Credential is a player's delegated access to the streaming API. It is
// owned by exactly one player and mutated in place on refresh.
type Credential struct {
	PlayerID     string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
}

func (c *Credential) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}

// HasScopes reports whether the credential's granted scope set covers every
// required scope. A credential missing any required scope is unusable.
func (c *Credential) HasScopes(required []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

type SharedPlaylist struct {
	ID         string
	OwnerID    string
	Name       string
	Public     bool
	ResolvedAt time.Time
}

// TrackRef is the canonical form of a submitted track URL. All ledger and
// quota lookups key on it, never on the raw string.
type TrackRef string

// NormalizeTrackURL strips the query string and fragment from a raw track
// URL. This is the sole canonicalization step applied before any ledger
// lookup, write, or equality comparison.
func NormalizeTrackURL(raw string) (TrackRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackReference, raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return TrackRef(u.String()), nil
}

// TrackIDFrom extracts the provider's stable track id from a canonical
// reference of the form .../track/{id}. The id, not the full URL, is what
// playlist membership is tested against.
func TrackIDFrom(ref TrackRef) (string, error) {
	s := string(ref)
	idx := strings.Index(s, "track/")
	if idx < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackReference, s)
	}
	id := s[idx+len("track/"):]
	if id = strings.Trim(id, "/"); id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackReference, s)
	}
	return id, nil
}

// PlaylistNameFor is the pure function from calendar date to the shared
// playlist's name. A new calendar day implies a new playlist.
func PlaylistNameFor(t time.Time) string {
	return "Whosetune " + t.Format("2006-01-02")
}

// PendingSubmission is one contributor's batch of submitted tracks, held
// both in memory and in the durable pending-submissions document.
type PendingSubmission struct {
	Tracks  []TrackRef
	AddedAt time.Time
}

// TrackSubmissionCount is the exact number of tracks a player submits in
// one batch, whether fetched from their listening history or entered by hand.
const TrackSubmissionCount = 5

type PlaybackState struct {
	Playing  bool
	TrackRef TrackRef
	TrackID  string
	Name     string
	Artists  []string
	AlbumArt string
}

type GuessResult int

const (
	GuessCorrect GuessResult = iota
	GuessIncorrect
	GuessNoActivePlayback
	GuessQuotaExceeded
)

func (r GuessResult) String() string {
	switch r {
	case GuessCorrect:
		return "correct"
	case GuessIncorrect:
		return "incorrect"
	case GuessNoActivePlayback:
		return "no_active_playback"
	case GuessQuotaExceeded:
		return "quota_exceeded"
	}
	return "unknown"
}

// GuessOutcome is what the guess engine reports back for UI messaging.
type GuessOutcome struct {
	Result             GuessResult
	Contributors       []string
	UsedViewerPlayback bool
}
