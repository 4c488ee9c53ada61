package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kinoplex/auth-api/internal/middleware"
	"github.com/kinoplex/auth-api/internal/models"
	"github.com/kinoplex/auth-api/internal/service"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
	"github.com/kinoplex/auth-api/pkg/response"
)

const refreshCookieName = "refresh_token"

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service    *service.AuthService
	history    *service.HistoryService
	refreshTTL time.Duration
}

// NewAuthHandler creates a new handler. refreshTTL bounds the lifetime of the
// mirrored refresh cookie.
func NewAuthHandler(svc *service.AuthService, history *service.HistoryService, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{service: svc, history: history, refreshTTL: refreshTTL}
}

// Register godoc
// @Summary Register a new account
// @Description Create a principal with the default role
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Register payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid register payload"))
		return
	}

	info, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, info)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password, opening a device session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")
	req.DeviceID = deviceIdentity(c, req.DeviceID)

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.SetCookie {
		setRefreshCookie(c, res.RefreshToken, h.refreshTTL)
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchange a refresh token for a new token pair; the presented token is invalidated
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	if req.RefreshToken == "" {
		if fromCookie, err := c.Cookie(refreshCookieName); err == nil {
			req.RefreshToken = fromCookie
		}
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")
	req.DeviceID = deviceIdentity(c, req.DeviceID)

	res, err := h.service.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.SetCookie {
		setRefreshCookie(c, res.RefreshToken, h.refreshTTL)
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current device
// @Description Close the calling device's session and revoke its refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		DeviceID string `json:"device_id"`
	}
	// The body is optional: absent or malformed payloads fall back to the
	// derived device identity.
	_ = c.ShouldBindJSON(&payload)
	deviceID := deviceIdentity(c, payload.DeviceID)

	if err := h.service.LogoutDevice(c.Request.Context(), claims.Subject, deviceID, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}

	clearRefreshCookie(c)
	response.NoContent(c)
}

// LogoutAll godoc
// @Summary Logout everywhere
// @Description Revoke every session and refresh token of the calling user
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.LogoutAll(c.Request.Context(), claims.Subject, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}

	clearRefreshCookie(c)
	response.NoContent(c)
}

// ForceLogoutAll godoc
// @Summary Force logout a user
// @Description Administrative revocation of every session of the target user
// @Tags Authentication
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/users/{id}/logout-all [post]
func (h *AuthHandler) ForceLogoutAll(c *gin.Context) {
	targetID := c.Param("id")
	if targetID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "user id required"))
		return
	}

	if err := h.service.LogoutAll(c.Request.Context(), targetID, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for the current user; all sessions are revoked
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), claims.Subject, req); err != nil {
		response.Error(c, err)
		return
	}

	clearRefreshCookie(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's info
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info := models.UserInfo{
		ID:    claims.Subject,
		Email: claims.Email,
		Roles: claims.Roles,
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// Sessions godoc
// @Summary List live sessions
// @Description Lists the caller's device sessions currently in the index
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/sessions [get]
func (h *AuthHandler) Sessions(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// History godoc
// @Summary Account history
// @Description Paginated authentication event trail for the caller
// @Tags Authentication
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/history [get]
func (h *AuthHandler) History(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, pageSize := paginationParams(c)
	entries, total, err := h.history.List(c.Request.Context(), claims.Subject, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

func currentUser(c *gin.Context) (*models.AccessClaims, bool) {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.AccessClaims)
	return claims, ok
}

// deviceIdentity normalizes the device identifier: an explicit id wins (body
// field, then X-Device-ID header), then a digest of the user agent, then the
// shared unknown bucket.
func deviceIdentity(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromHeader := c.GetHeader("X-Device-ID"); fromHeader != "" {
		return fromHeader
	}
	if ua := c.GetHeader("User-Agent"); ua != "" {
		sum := sha256.Sum256([]byte(ua))
		return "ua-" + hex.EncodeToString(sum[:6])
	}
	return models.DeviceUnknown
}

func paginationParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func setRefreshCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, int(ttl.Seconds()), "/", "", c.Request.TLS != nil, true)
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}
