package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/session"
)

const testSecret = "test-secret-0123456789"

func newTestService(t *testing.T) (*Service, *database.MemoryStore, *TokenIssuer) {
	t.Helper()
	store, err := database.NewMemoryStore(context.Background())
	require.NoError(t, err)
	tokens, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	logger := zerolog.Nop()
	return NewService(store, tokens, session.NewMemoryStore(), &logger), store, tokens
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("correct horse", hash))
	assert.Error(t, CheckPassword("wrong horse", hash))
	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("long enough"))
}

func TestTokenRoundTrip(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	mid := int64(4)
	token, claims, err := ti.Issue(&identity.User{ID: 7, Role: identity.RoleMunicipalityUser, MunicipalityID: &mid})
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := ti.Parse(token)
	require.NoError(t, err)
	id, err := parsed.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, identity.RoleMunicipalityUser, parsed.Role)
	assert.Equal(t, &mid, parsed.MunicipalityID)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestTokenRejected(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	token, _, err := ti.Issue(&identity.User{ID: 1, Role: identity.RoleSuperAdmin})
	require.NoError(t, err)

	other, err := NewTokenIssuer("another-secret-0123456789", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	ti.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = ti.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = NewTokenIssuer("short", time.Hour)
	assert.Error(t, err)
}

func TestLoginLogout(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, nil, CreateUserInput{
		Email:    "admin@example.com",
		Name:     "管理者",
		Password: "s3cret-password",
		Role:     identity.RoleSuperAdmin,
	})
	require.NoError(t, err)
	assert.Empty(t, created.PasswordHash)

	_, err = svc.Login(ctx, "admin@example.com", "wrong-password")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = svc.Login(ctx, "nobody@example.com", "s3cret-password")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	res, err := svc.Login(ctx, "ADMIN@example.com", "s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.User.ID)
	assert.Empty(t, res.User.PasswordHash)

	u, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	assert.Equal(t, identity.RoleSuperAdmin, u.Role)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Authenticate(ctx, res.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Authenticate(ctx, "garbage")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestAuthenticateReadsCurrentScope(t *testing.T) {
	svc, store, tokens := newTestService(t)
	ctx := context.Background()

	stored, err := store.AddUser(ctx, database.User{Email: "x@example.com", Role: identity.RoleCreator})
	require.NoError(t, err)

	// A token carrying an outdated role still resolves to the stored role.
	token, _, err := tokens.Issue(&identity.User{ID: stored.ID, Role: identity.RoleSuperAdmin})
	require.NoError(t, err)
	u, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleCreator, u.Role)

	ghost, _, err := tokens.Issue(&identity.User{ID: 999, Role: identity.RoleSuperAdmin})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, ghost)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestCreateUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	admin := &identity.User{ID: 1, Role: identity.RoleSuperAdmin}

	_, err := svc.CreateUser(ctx, &identity.User{ID: 2, Role: identity.RoleCreator}, CreateUserInput{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.CreateUser(ctx, admin, CreateUserInput{
		Email: "m@example.com", Name: "m", Password: "password1", Role: identity.RoleMunicipalityUser,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "municipality user without municipality")

	_, err = svc.CreateUser(ctx, admin, CreateUserInput{
		Email: "not-an-email", Name: "m", Password: "password1", Role: identity.RoleCreator,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	in := CreateUserInput{Email: "c@example.com", Name: "c", Password: "password1", Role: identity.RoleCreator}
	_, err = svc.CreateUser(ctx, admin, in)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, in)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	users, err := svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].PasswordHash)
}
