package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	// PlaylistPageSize matches the streaming API's maximum page size for
	// playlist and track listings.
	PlaylistPageSize = 100

	TopTracksTimeRange = "short_term"
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	SessionCookieName = "whosetune_session"
	SessionTTL        = 12 * time.Hour
	OAuthStateTTL     = 10 * time.Minute
)
