package session

import (
	"fmt"
	"time"
	"whosetune/internal/constants"
	"whosetune/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Manager issues and verifies signed session tokens. Each token carries the
// server epoch (process start time); tokens minted before a restart fail
// verification, which is what resets every in-memory quota and game state
// from the player's point of view.
type Manager struct {
	secret []byte
	epoch  int64
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret), epoch: time.Now().Unix()}
}

type Claims struct {
	jwt.RegisteredClaims
	SessionID   string `json:"sid"`
	PlayerID    string `json:"pid"`
	DisplayName string `json:"name"`
	Epoch       int64  `json:"epoch"`
}

func (m *Manager) Epoch() int64 {
	return m.epoch
}

func (m *Manager) Issue(player domain.Player) (string, error) {
	sid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(constants.SessionTTL)),
		},
		SessionID:   sid,
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
		Epoch:       m.epoch,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if claims.Epoch != m.epoch {
		return nil, fmt.Errorf("stale session: epoch %d, server epoch %d", claims.Epoch, m.epoch)
	}
	return claims, nil
}
