package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"whosetune/internal/constants"
	"whosetune/internal/domain"

	"github.com/rs/zerolog"
)

// CredentialRepository persists one credential slot per player identity.
// Slots are populated at authorization time and mutated in place on refresh.
type CredentialRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCredentialRepository(db *sql.DB, logger zerolog.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

func (r *CredentialRepository) Get(ctx context.Context, playerID string) (*domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT player_id, display_name, access_token, refresh_token, scopes, expires_at
		FROM credentials
		WHERE player_id = ?
	`, playerID)

	var cred domain.Credential
	var scopes string
	err := row.Scan(&cred.PlayerID, &cred.DisplayName, &cred.AccessToken, &cred.RefreshToken, &scopes, &cred.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialMissing
	}
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", playerID).Msg("failed to load credential")
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.Scopes = strings.Fields(scopes)
	return &cred, nil
}

func (r *CredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (player_id, display_name, access_token, refresh_token, scopes, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scopes = excluded.scopes,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, cred.PlayerID, cred.DisplayName, cred.AccessToken, cred.RefreshToken,
		strings.Join(cred.Scopes, " "), cred.ExpiresAt, time.Now())
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", cred.PlayerID).Msg("failed to upsert credential")
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE player_id = ?`, playerID); err != nil {
		r.logger.Error().Err(err).Str("player_id", playerID).Msg("failed to delete credential")
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) All(ctx context.Context) ([]domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT player_id, display_name, access_token, refresh_token, scopes, expires_at
		FROM credentials
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		var cred domain.Credential
		var scopes string
		if err := rows.Scan(&cred.PlayerID, &cred.DisplayName, &cred.AccessToken, &cred.RefreshToken, &scopes, &cred.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		cred.Scopes = strings.Fields(scopes)
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
