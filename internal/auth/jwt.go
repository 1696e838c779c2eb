package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "dataportal"

// Claims represents the JWT claims structure
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HS256 session tokens
type JWTManager struct {
	secret []byte
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewJWTManager validates the configured secret. Without a secret it fails, unless
// devMode is set, in which case a random secret is generated and sessions do not
// survive a restart.
func NewJWTManager(secret string, devMode bool) (*JWTManager, error) {
	if secret == "" {
		if !devMode {
			return nil, errors.New("auth.jwt_secret is required; generate one with: openssl rand -hex 32")
		}
		generated, err := generateRandomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate development secret: %w", err)
		}
		slog.Warn("auth.jwt_secret not set, using a generated secret; sessions will not persist across restarts")
		secret = generated
	} else if len(secret) < 32 {
		slog.Warn("auth.jwt_secret is shorter than the recommended 32 characters")
	}
	return &JWTManager{secret: []byte(secret)}, nil
}

// Generate creates a token for a user, valid for ttl (one hour if zero)
func (m *JWTManager) Generate(userID int64, username string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses a token and checks signature, expiry and issuer
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
