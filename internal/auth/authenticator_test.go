package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
)

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return f[id], nil
}

type fakeMemberships map[int64][]int64

func (f fakeMemberships) ActiveProjectIDs(_ context.Context, userID int64) ([]int64, error) {
	return f[userID], nil
}

type fakeTokens struct {
	mu      sync.Mutex
	tokens  []models.APIToken
	touched []string
}

func (f *fakeTokens) ListByPrefix(_ context.Context, prefix string) ([]models.APIToken, error) {
	var out []models.APIToken
	for _, tok := range f.tokens {
		if tok.TokenPrefix == prefix {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (f *fakeTokens) TouchLastUsed(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeTokens) touchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...)
}

type authFixture struct {
	auth   *Authenticator
	jwt    *JWTManager
	tokens *fakeTokens
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	jwtManager := newTestJWTManager(t)
	users := fakeUsers{
		1: {ID: 1, Username: "alice", IsActive: true},
		2: {ID: 2, Username: "root", IsActive: true, IsSuperuser: true},
		3: {ID: 3, Username: "gone", IsActive: false},
	}
	memberships := fakeMemberships{1: {10, 11}}
	tokens := &fakeTokens{}
	return &authFixture{
		auth:   NewAuthenticator(jwtManager, users, memberships, tokens, "mtp"),
		jwt:    jwtManager,
		tokens: tokens,
	}
}

func (f *authFixture) addToken(t *testing.T, userID int64, expiresAt *time.Time) string {
	t.Helper()
	token, hash, prefix, err := GenerateAPIToken("mtp")
	require.NoError(t, err)
	f.tokens.tokens = append(f.tokens.tokens, models.APIToken{
		ID:          prefix + "-id",
		UserID:      userID,
		TokenHash:   hash,
		TokenPrefix: prefix,
		ExpiresAt:   expiresAt,
	})
	return token
}

func TestAuthenticate_JWT(t *testing.T) {
	f := newAuthFixture(t)

	token, err := f.jwt.Generate(1, "alice", time.Hour)
	require.NoError(t, err)

	p, err := f.auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, embargo.KindAuthenticated, p.Kind())
	assert.Equal(t, int64(1), p.UserID())
	assert.True(t, p.IsMemberOf(10))
	assert.True(t, p.IsMemberOf(11))
	assert.False(t, p.IsMemberOf(12))
}

func TestAuthenticate_Superuser(t *testing.T) {
	f := newAuthFixture(t)

	token, err := f.jwt.Generate(2, "root", time.Hour)
	require.NoError(t, err)

	p, err := f.auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, p.IsSuperuser())
}

func TestAuthenticate_RejectsInactiveAndUnknownUsers(t *testing.T) {
	f := newAuthFixture(t)

	for _, userID := range []int64{3, 99} {
		token, err := f.jwt.Generate(userID, "x", time.Hour)
		require.NoError(t, err)

		_, err = f.auth.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "user %d", userID)
	}
}

func TestAuthenticate_InvalidJWT(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.auth.Authenticate(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_APIToken(t *testing.T) {
	f := newAuthFixture(t)
	token := f.addToken(t, 1, nil)

	p, err := f.auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.UserID())

	id := f.tokens.tokens[0].ID
	assert.Eventually(t, func() bool {
		touched := f.tokens.touchedIDs()
		return len(touched) == 1 && touched[0] == id
	}, time.Second, 10*time.Millisecond)
}

func TestAuthenticate_APITokenFailures(t *testing.T) {
	f := newAuthFixture(t)
	past := time.Now().Add(-time.Hour)
	expired := f.addToken(t, 1, &past)
	valid := f.addToken(t, 1, nil)

	t.Run("expired", func(t *testing.T) {
		_, err := f.auth.Authenticate(context.Background(), expired)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong secret with known prefix", func(t *testing.T) {
		_, err := f.auth.Authenticate(context.Background(), valid[:DisplayPrefixLength]+"tampered")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := f.auth.Authenticate(context.Background(), "mtp_unknowntoken")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	assert.Empty(t, f.tokens.touchedIDs())
}

func TestAuthenticate_APITokensDisabled(t *testing.T) {
	f := newAuthFixture(t)
	token := f.addToken(t, 1, nil)
	f.auth.tokenPrefix = ""

	_, err := f.auth.Authenticate(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
