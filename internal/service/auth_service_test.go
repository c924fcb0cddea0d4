package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type userRepoStub struct {
	users      map[string]*models.User
	lastLogins []string
	passwords  map[string]string
}

func (r *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *userRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	r.lastLogins = append(r.lastLogins, id)
	return nil
}

func (r *userRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if r.passwords == nil {
		r.passwords = map[string]string{}
	}
	r.passwords[id] = passwordHash
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *userRepoStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &userRepoStub{users: map[string]*models.User{
		"user-1": {
			ID:           "user-1",
			Email:        "clerk@atelier.id",
			PasswordHash: string(hash),
			FullName:     "Ni Luh",
			Role:         models.RoleClerk,
			Active:       true,
		},
		"user-2": {
			ID:           "user-2",
			Email:        "retired@atelier.id",
			PasswordHash: string(hash),
			Role:         models.RoleManager,
			Active:       false,
		},
	}}

	service := NewAuthService(repo, nil, nil, AuthConfig{
		Secret:             "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "atelier-api",
	})
	return service, repo
}

func TestAuthServiceLoginIssuesTokenPair(t *testing.T) {
	service, repo := newAuthFixture(t)

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "clerk@atelier.id",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEqual(t, resp.AccessToken, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, models.RoleClerk, resp.User.Role)
	assert.Equal(t, []string{"user-1"}, repo.lastLogins)

	claims := &models.JWTClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "atelier-api", claims.Issuer)
	assert.Empty(t, claims.Subject)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	service, _ := newAuthFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "clerk@atelier.id",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginUnknownEmailSameError(t *testing.T) {
	service, _ := newAuthFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@atelier.id",
		Password: "correct-horse",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	service, _ := newAuthFixture(t)

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "retired@atelier.id",
		Password: "correct-horse",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceRefreshRoundTrip(t *testing.T) {
	service, _ := newAuthFixture(t)

	login, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "clerk@atelier.id",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	refreshed, err := service.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "user-1", refreshed.User.ID)
}

func TestAuthServiceRefreshRejectsAccessToken(t *testing.T) {
	service, _ := newAuthFixture(t)

	login, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "clerk@atelier.id",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = service.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.AccessToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRefreshRejectsGarbage(t *testing.T) {
	service, _ := newAuthFixture(t)

	_, err := service.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "not-a-jwt"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceChangePassword(t *testing.T) {
	service, repo := newAuthFixture(t)

	err := service.ChangePassword(context.Background(), "user-1", "wrong", "new-password")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	err = service.ChangePassword(context.Background(), "user-1", "correct-horse", "short")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	err = service.ChangePassword(context.Background(), "user-1", "correct-horse", "new-password")
	require.NoError(t, err)
	require.Contains(t, repo.passwords, "user-1")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords["user-1"]), []byte("new-password")))
}
