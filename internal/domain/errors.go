package domain

import "errors"

// Failure taxonomy. Handlers map each member to a distinct response so
// players always learn why a submission or guess was rejected.
var (
	ErrCredentialMissing       = errors.New("no stored credential for player")
	ErrCredentialRefreshFailed = errors.New("credential refresh failed")
	ErrInsufficientScope       = errors.New("credential missing required scope")
	ErrExternalAPI             = errors.New("streaming API error")
	ErrInvalidTrackReference   = errors.New("invalid track reference")
	ErrPlaylistUnresolvable    = errors.New("shared playlist unresolvable")
	ErrNoTopTracks             = errors.New("no top tracks available")
)
