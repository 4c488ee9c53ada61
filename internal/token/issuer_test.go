package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinoplex/auth-api/pkg/config"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(config.TokenConfig{Issuer: "test-issuer"})
	require.NoError(t, err)
	require.True(t, issuer.GeneratedKeys())
	return issuer
}

func TestIssueAndDecodeAccess(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, expiresAt, err := issuer.IssueAccess("user-1", "user@example.com", []string{"user", "admin"}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.DecodeAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestRefreshCarriesNoAuthorizationClaims(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, tokenID, _, err := issuer.IssueRefresh("user-1", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenID)

	claims, err := issuer.DecodeRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, tokenID, claims.ID)

	// A refresh token must not decode into usable access claims.
	access, err := issuer.DecodeAccess(signed)
	require.NoError(t, err)
	assert.Empty(t, access.Roles)
	assert.Empty(t, access.Email)
}

func TestDecodeExpired(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, _, err := issuer.IssueAccess("user-1", "user@example.com", nil, -time.Minute)
	require.NoError(t, err)

	_, err = issuer.DecodeAccess(signed)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))
}

func TestDecodeForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	other := newTestIssuer(t)

	signed, _, err := other.IssueAccess("user-1", "user@example.com", nil, time.Hour)
	require.NoError(t, err)

	_, err = issuer.DecodeAccess(signed)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidSignature))
}

func TestDecodeMalformed(t *testing.T) {
	issuer := newTestIssuer(t)

	_, err := issuer.DecodeAccess("not-a-token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenMalformed))
}
