package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kinoplex/auth-api/internal/models"
	"github.com/kinoplex/auth-api/internal/repository"
	"github.com/kinoplex/auth-api/internal/service"
	"github.com/kinoplex/auth-api/internal/token"
	"github.com/kinoplex/auth-api/pkg/config"
)

type jwtFixture struct {
	router   *gin.Engine
	issuer   *token.Issuer
	sessions *repository.SessionIndexRepository
}

func newJWTFixture(t *testing.T) *jwtFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer, err := token.NewIssuer(config.TokenConfig{Issuer: "test-issuer"})
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := repository.NewSessionIndexRepository(client, "auth:sessions:", time.Minute, zap.NewNop())

	svc := service.NewAuthService(nil, nil, sessions, issuer, nil, nil, nil, zap.NewNop(), service.AuthConfig{})

	r := gin.New()
	r.GET("/protected", JWT(svc), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.AccessClaims)
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})

	return &jwtFixture{router: r, issuer: issuer, sessions: sessions}
}

func (f *jwtFixture) get(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsLiveSession(t *testing.T) {
	f := newJWTFixture(t)

	signed, _, err := f.issuer.IssueAccess("user-1", "user@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Add(context.Background(), "user-1", "laptop", signed))

	w := f.get("Bearer " + signed)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestJWTRejectsMissingOrMangledHeader(t *testing.T) {
	f := newJWTFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.get("").Code)
	assert.Equal(t, http.StatusUnauthorized, f.get("Token abc").Code)
}

func TestJWTRejectsRevokedSession(t *testing.T) {
	f := newJWTFixture(t)

	// Signature-valid token that was never added to the session index: this
	// is exactly the state a token is in after a bulk logout.
	signed, _, err := f.issuer.IssueAccess("user-1", "user@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)

	w := f.get("Bearer " + signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	f := newJWTFixture(t)

	other, err := token.NewIssuer(config.TokenConfig{Issuer: "someone-else"})
	require.NoError(t, err)
	signed, _, err := other.IssueAccess("user-1", "user@example.com", nil, time.Hour)
	require.NoError(t, err)

	w := f.get("Bearer " + signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
