package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	RequiredScope []string

	DBPath          string
	LeaderboardPath string
	PendingPath     string

	SessionSecret string
	GuessLimit    int

	ServerPort string
	LogLevel   string
}

const defaultScope = "user-library-read user-read-playback-state user-top-read playlist-read-private playlist-modify-private playlist-modify-public"

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		ClientID:        getEnv("SPOTIFY_CLIENT_ID", ""),
		ClientSecret:    getEnv("SPOTIFY_CLIENT_SECRET", ""),
		RedirectURL:     getEnv("SPOTIFY_REDIRECT_URI", "http://localhost:8080/auth/callback"),
		RequiredScope:   strings.Fields(getEnv("SPOTIFY_SCOPE", defaultScope)),
		DBPath:          getEnv("DB_PATH", "whosetune.db"),
		LeaderboardPath: getEnv("LEADERBOARD_PATH", "leaderboard.json"),
		PendingPath:     getEnv("PENDING_PATH", "pending_submissions.json"),
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		GuessLimit:      getEnvInt("GUESS_LIMIT", 1),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if cfg.GuessLimit < 1 {
		return nil, fmt.Errorf("GUESS_LIMIT must be at least 1, got %d", cfg.GuessLimit)
	}

	logger.Info().
		Str("redirect_url", cfg.RedirectURL).
		Str("db_path", cfg.DBPath).
		Str("leaderboard_path", cfg.LeaderboardPath).
		Str("pending_path", cfg.PendingPath).
		Int("guess_limit", cfg.GuessLimit).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
