package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/pkg/errs"
)

func TestAccountRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	svc := NewAccountService(repository.NewUserRepository(f.db), "test-secret", time.Hour)

	u, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse", 30)
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correct horse", u.Password)

	token, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	userID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
}

func TestAccountDuplicateUsername(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	svc := NewAccountService(repository.NewUserRepository(f.db), "test-secret", time.Hour)

	_, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse", 30)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "other@example.com", "correct horse", 30)
	assert.True(t, errs.IsDuplicateKey(err))
}

func TestAccountBadLogin(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	svc := NewAccountService(repository.NewUserRepository(f.db), "test-secret", time.Hour)

	_, err := svc.Login(ctx, "ghost", "whatever")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.Register(ctx, "alice", "alice@example.com", "correct horse", 30)
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestParseTokenGarbage(t *testing.T) {
	f := setupFixture(t)
	svc := NewAccountService(repository.NewUserRepository(f.db), "test-secret", time.Hour)
	_, err := svc.ParseToken("not.a.token")
	assert.ErrorIs(t, err, ErrBadCredentials)

	// 换密钥签出的令牌不被接受
	other := NewAccountService(repository.NewUserRepository(f.db), "other-secret", time.Hour)
	_, err = other.Register(context.Background(), "bob", "bob@example.com", "correct horse", 20)
	require.NoError(t, err)
	token, err := other.Login(context.Background(), "bob", "correct horse")
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrBadCredentials)
}
