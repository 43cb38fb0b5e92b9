package authsvc

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/errs"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	tok := signAccessToken(secret, "user-1", time.Now().Add(time.Minute))

	userID, err := parseAccessToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAccessTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	tok := signAccessToken(secret, "user-1", time.Now().Add(-time.Minute))

	_, err := parseAccessToken(secret, tok)
	require.Error(t, err)
	assert.Equal(t, errs.SessionExpired, errs.KindOf(err))
}

func TestAccessTokenTamperedSignature(t *testing.T) {
	secret := []byte("test-secret")
	tok := signAccessToken(secret, "user-1", time.Now().Add(time.Minute))

	_, err := parseAccessToken(secret, tok+"x")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidToken, errs.KindOf(err))
}

func TestAccessTokenWrongSecret(t *testing.T) {
	tok := signAccessToken([]byte("secret-a"), "user-1", time.Now().Add(time.Minute))

	_, err := parseAccessToken([]byte("secret-b"), tok)
	require.Error(t, err)
	assert.Equal(t, errs.InvalidToken, errs.KindOf(err))
}

func TestAccessTokenMalformed(t *testing.T) {
	_, err := parseAccessToken([]byte("secret"), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidToken, errs.KindOf(err))
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	presented, hashHex, err := newRefreshToken(secret)
	require.NoError(t, err)
	require.NotEmpty(t, presented)
	require.NotEmpty(t, hashHex)

	gotHash, verr := verifyPresentedRefreshToken(secret, presented)
	require.Nil(t, verr)
	assert.Equal(t, hashHex, gotHash)
}

func TestRefreshTokenTampered(t *testing.T) {
	secret := []byte("test-secret")
	presented, _, err := newRefreshToken(secret)
	require.NoError(t, err)

	_, verr := verifyPresentedRefreshToken(secret, presented+"x")
	require.NotNil(t, verr)
	assert.Equal(t, errs.InvalidToken, verr.Kind)
}

func TestRefreshTokenWrongSecret(t *testing.T) {
	presented, _, err := newRefreshToken([]byte("secret-a"))
	require.NoError(t, err)

	_, verr := verifyPresentedRefreshToken([]byte("secret-b"), presented)
	require.NotNil(t, verr)
	assert.Equal(t, errs.InvalidToken, verr.Kind)
}

func TestRefreshTokenHashesDifferFromPresentedValue(t *testing.T) {
	presented, hashHex, err := newRefreshToken([]byte("secret"))
	require.NoError(t, err)
	assert.NotContains(t, presented, hashHex, "the value stored at rest must never appear in the presented token")
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	assert.True(t, isUniqueViolation(pgErr))

	other := &pgconn.PgError{Code: "23503"}
	assert.False(t, isUniqueViolation(other))

	assert.False(t, isUniqueViolation(errors.New("boom")))
}
