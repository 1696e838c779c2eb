// Package auth turns bearer credentials into embargo principals. Two credential kinds
// are accepted: HS256 session JWTs and long-lived API tokens stored as bcrypt hashes.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APITokenLength is the length of the random part of the token in bytes
	APITokenLength = 32

	// DisplayPrefixLength is the number of leading characters stored in clear for
	// lookup and display
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateAPIToken creates a random token of the form <prefix>_<random>.
// Returns: full token (to show once), bcrypt hash (to store), display prefix
func GenerateAPIToken(prefix string) (token, hash, displayPrefix string, err error) {
	randomBytes := make([]byte, APITokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token = prefix + "_" + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API token: %w", err)
	}
	return token, string(hashBytes), DisplayPrefix(token), nil
}

// DisplayPrefix returns the stored lookup prefix of a token
func DisplayPrefix(token string) string {
	if len(token) > DisplayPrefixLength {
		return token[:DisplayPrefixLength]
	}
	return token
}

// ValidateAPIToken checks if a provided token matches the stored hash
func ValidateAPIToken(provided, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(provided)) == nil
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}
