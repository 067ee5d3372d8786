package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return NewService(store, NewTokenIssuer("test-secret", time.Hour)), store
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, err := svc.Register(ctx, "alice", "a@x.io", "pw1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.False(t, user.IsAdmin)

	stored, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.True(t, VerifyPassword("pw1", stored.PasswordHash))

	tests := []struct {
		name     string
		username string
		email    string
		password string
		kind     apperr.Kind
		message  string
	}{
		{"duplicate username", "alice", "other@x.io", "pw", apperr.Conflict, "Username already exists"},
		{"duplicate email", "bob", "a@x.io", "pw", apperr.Conflict, "Email already exists"},
		{"missing email", "carol", "", "pw", apperr.BadRequest, "Username, email and password are required"},
		{"missing password", "carol", "c@x.io", "", apperr.BadRequest, "Username, email and password are required"},
		{"password over 72 bytes", "carol", "c@x.io", strings.Repeat("p", 80), apperr.BadRequest, "Password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.email, tt.password)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.message, apperr.Message(err))
		})
	}
}

type racingUsers struct {
	*repository.MemoryStore
}

// GetUserByUsername hides existing users so the unique index path is exercised.
func (r racingUsers) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, nil
}

func (r racingUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func TestRegisterDuplicateRace(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.CreateUser(ctx, &model.User{Username: "alice", Email: "a@x.io", PasswordHash: "h"}))

	svc := NewService(racingUsers{store}, NewTokenIssuer("s", time.Hour))
	_, err := svc.Register(ctx, "alice", "a@x.io", "pw")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestLoginAndAuthorize(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.EnsureAdmin(ctx, "admin", "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	res, err := svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, res.IsAdmin)
	assert.Equal(t, "admin", res.Username)

	userID, err := svc.Authorize(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, userID)

	admin, err := svc.RequireAdmin(ctx, userID)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	byEmail, err := svc.Login(ctx, "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.Equal(t, res.UserID, byEmail.UserID)

	_, err = svc.Login(ctx, "admin", "wrong")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	assert.Equal(t, "Invalid credentials", apperr.Message(err))

	_, err = svc.Login(ctx, "nobody", "admin123")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestLoginUsernameWithAtSign(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Register(ctx, "dj@home", "dj@x.io", "pw")
	require.NoError(t, err)

	res, err := svc.Login(ctx, "dj@home", "pw")
	require.NoError(t, err)
	assert.Equal(t, "dj@home", res.Username)

	res, err = svc.Login(ctx, "dj@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "dj@home", res.Username)
}

func TestEnsureAdminRejectsLongPassword(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.EnsureAdmin(context.Background(), "admin", "admin@example.com", strings.Repeat("p", 73))
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	user, err := store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestEnsureAdminIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.EnsureAdmin(ctx, "admin", "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin", "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRequireAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	user, err := svc.Register(ctx, "alice", "a@x.io", "pw1")
	require.NoError(t, err)

	_, err = svc.RequireAdmin(ctx, user.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	assert.Equal(t, "Admin access required", apperr.Message(err))

	_, err = svc.RequireAdmin(ctx, 999)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	svc, _ := newTestService(t)

	other := NewTokenIssuer("another-secret", time.Hour)
	foreign, err := other.GenerateToken(1)
	require.NoError(t, err)

	expiredIssuer := NewTokenIssuer("test-secret", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.GenerateToken(1)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":         "",
		"malformed":     "not-a-jwt",
		"bad signature": foreign,
		"expired":       expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authorize(token)
			assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", 24*time.Hour)
	token, err := issuer.GenerateToken(42)
	require.NoError(t, err)

	id, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = issuer.ParseToken(token + "x")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("10.0.0.3"))
	l.mu.Lock()
	_, kept := l.visitors["10.0.0.2"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are evicted")
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("k"))
	}
}
