package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/kinoplex/auth-api/internal/models"
)

func rbacRouter(claims *models.AccessClaims, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/users/:id/action", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	}, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doRBAC(r *gin.Engine, target string) int {
	req := httptest.NewRequest(http.MethodPost, "/users/"+target+"/action", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func accessClaims(subject string, roles ...string) *models.AccessClaims {
	return &models.AccessClaims{
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	r := rbacRouter(accessClaims("u1", models.RoleAdmin), models.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, doRBAC(r, "u2"))
}

func TestRBACRejectsMissingRole(t *testing.T) {
	r := rbacRouter(accessClaims("u1", models.RoleUser), models.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, doRBAC(r, "u2"))
}

func TestRBACAllowsSelf(t *testing.T) {
	r := rbacRouter(accessClaims("u1", models.RoleUser), models.RoleAdmin, "SELF")
	assert.Equal(t, http.StatusNoContent, doRBAC(r, "u1"))
	assert.Equal(t, http.StatusForbidden, doRBAC(r, "u2"))
}

func TestRBACRequiresAuthentication(t *testing.T) {
	r := rbacRouter(nil, models.RoleAdmin)
	assert.Equal(t, http.StatusUnauthorized, doRBAC(r, "u2"))
}
