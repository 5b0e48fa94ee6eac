package fx

import (
	"database/sql"
	"whosetune/internal/api"
	"whosetune/internal/config"
	"whosetune/internal/database"
	"whosetune/internal/logger"
	"whosetune/internal/repository"
	"whosetune/internal/server"
	"whosetune/internal/service"
	"whosetune/internal/session"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideCredentialRepository(db *sql.DB, log zerolog.Logger) *repository.CredentialRepository {
	return repository.NewCredentialRepository(db, log)
}

func ProvideLeaderboardStore(cfg *config.Config, log zerolog.Logger) *repository.LeaderboardStore {
	return repository.NewLeaderboardStore(cfg.LeaderboardPath, log)
}

func ProvidePendingStore(cfg *config.Config, log zerolog.Logger) *repository.PendingStore {
	return repository.NewPendingStore(cfg.PendingPath, log)
}

func ProvideSessionManager(cfg *config.Config) *session.Manager {
	return session.NewManager(cfg.SessionSecret)
}

func ProvideCredentialService(client *api.SpotifyClient, repo *repository.CredentialRepository, cfg *config.Config, log zerolog.Logger) *service.CredentialService {
	return service.NewCredentialService(client, repo, cfg.RequiredScope, log)
}

func ProvidePlaylistRegistry(client *api.SpotifyClient, log zerolog.Logger) *service.PlaylistRegistry {
	return service.NewPlaylistRegistry(client, log)
}

func ProvideContributionLedger(client *api.SpotifyClient, registry *service.PlaylistRegistry, log zerolog.Logger) *service.ContributionLedger {
	return service.NewContributionLedger(client, registry, log)
}

func ProvideTopTrackAggregator(client *api.SpotifyClient, store *repository.PendingStore, log zerolog.Logger) *service.TopTrackAggregator {
	return service.NewTopTrackAggregator(client, store, log)
}

func ProvideGuessEngine(
	creds *service.CredentialService,
	client *api.SpotifyClient,
	registry *service.PlaylistRegistry,
	ledger *service.ContributionLedger,
	leaderboard *repository.LeaderboardStore,
	cfg *config.Config,
	log zerolog.Logger,
) *service.GuessEngine {
	return service.NewGuessEngine(creds, client, registry, ledger, leaderboard, cfg.GuessLimit, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// stores
	fx.Provide(ProvideCredentialRepository),
	fx.Provide(ProvideLeaderboardStore),
	fx.Provide(ProvidePendingStore),
	// api client
	fx.Provide(api.NewSpotifyClient),
	// sessions
	fx.Provide(ProvideSessionManager),
	// svc
	fx.Provide(ProvideCredentialService),
	fx.Provide(ProvidePlaylistRegistry),
	fx.Provide(ProvideContributionLedger),
	fx.Provide(ProvideTopTrackAggregator),
	fx.Provide(ProvideGuessEngine),
	// server
	fx.Provide(server.NewGameServer),
)
