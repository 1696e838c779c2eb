package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/safego"
)

// ErrInvalidCredentials is returned for any bearer credential that does not resolve
// to an active user
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore loads users
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// MembershipLister loads a user's active project memberships
type MembershipLister interface {
	ActiveProjectIDs(ctx context.Context, userID int64) ([]int64, error)
}

// TokenStore looks up API tokens by display prefix
type TokenStore interface {
	ListByPrefix(ctx context.Context, prefix string) ([]models.APIToken, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// Authenticator resolves bearer tokens to principals. Memberships are read once per
// call, so a principal reflects the memberships at the start of its request.
type Authenticator struct {
	jwt         *JWTManager
	users       UserStore
	memberships MembershipLister
	tokens      TokenStore
	tokenPrefix string // empty disables API tokens
}

// NewAuthenticator creates an Authenticator. API tokens are accepted only when
// tokenPrefix is non-empty.
func NewAuthenticator(jwtManager *JWTManager, users UserStore, memberships MembershipLister, tokens TokenStore, tokenPrefix string) *Authenticator {
	return &Authenticator{
		jwt:         jwtManager,
		users:       users,
		memberships: memberships,
		tokens:      tokens,
		tokenPrefix: tokenPrefix,
	}
}

// Authenticate resolves a bearer token. JWTs are tried first since they need no
// database round trip to reject.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*embargo.Principal, error) {
	if a.tokenPrefix != "" && strings.HasPrefix(token, a.tokenPrefix+"_") {
		return a.authenticateAPIToken(ctx, token)
	}

	claims, err := a.jwt.Validate(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.principalForUserID(ctx, claims.UserID)
}

func (a *Authenticator) authenticateAPIToken(ctx context.Context, token string) (*embargo.Principal, error) {
	candidates, err := a.tokens.ListByPrefix(ctx, DisplayPrefix(token))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, candidate := range candidates {
		if !ValidateAPIToken(token, candidate.TokenHash) {
			continue
		}
		if candidate.IsExpired(now) {
			return nil, fmt.Errorf("%w: api token expired", ErrInvalidCredentials)
		}

		id := candidate.ID
		safego.Go("api-token-touch", func() {
			touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.tokens.TouchLastUsed(touchCtx, id, now); err != nil {
				slog.Debug("failed to record api token use", "token_id", id, "error", err)
			}
		})
		return a.principalForUserID(ctx, candidate.UserID)
	}
	return nil, ErrInvalidCredentials
}

func (a *Authenticator) principalForUserID(ctx context.Context, userID int64) (*embargo.Principal, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return a.PrincipalFor(ctx, user)
}

// PrincipalFor builds the principal of an active user
func (a *Authenticator) PrincipalFor(ctx context.Context, user *models.User) (*embargo.Principal, error) {
	if user.IsSuperuser {
		return embargo.NewSuperuser(user.ID, user.Username), nil
	}
	projects, err := a.memberships.ActiveProjectIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return embargo.NewAuthenticated(user.ID, user.Username, projects), nil
}
