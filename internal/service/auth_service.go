package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kinoplex/auth-api/internal/models"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
	"github.com/kinoplex/auth-api/pkg/password"
)

type principalRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
	Create(ctx context.Context, user *models.User) error
	AssignRoleByName(ctx context.Context, userID, roleName string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type refreshLedger interface {
	Create(ctx context.Context, rec *models.RefreshRecord) error
	FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshRecord, error)
	Deactivate(ctx context.Context, tokenID string, at time.Time) error
	DeactivateDevice(ctx context.Context, userID, deviceID string, at time.Time) error
	DeactivateAll(ctx context.Context, userID string, at time.Time) error
}

type sessionIndex interface {
	Add(ctx context.Context, userID, deviceID, accessToken string) error
	List(ctx context.Context, userID string) (map[string]string, error)
	HasToken(ctx context.Context, userID, accessToken string) (bool, error)
	RemoveDevice(ctx context.Context, userID, deviceID string) error
	RemoveAll(ctx context.Context, userID string) error
}

type tokenIssuer interface {
	IssueAccess(subject, email string, roles []string, ttl time.Duration) (string, time.Time, error)
	IssueRefresh(subject string, ttl time.Duration) (string, string, time.Time, error)
	DecodeAccess(raw string) (*models.AccessClaims, error)
	DecodeRefresh(raw string) (*models.RefreshClaims, error)
}

type historyRecorder interface {
	Record(entry models.AccountHistory)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Pepper        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// AuthService orchestrates login, refresh and logout across the durable
// refresh ledger and the ephemeral session index. It holds no state of its
// own: all session truth lives in the two stores.
type AuthService struct {
	users     principalRepository
	ledger    refreshLedger
	sessions  sessionIndex
	issuer    tokenIssuer
	history   historyRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users principalRepository,
	ledger refreshLedger,
	sessions sessionIndex,
	issuer tokenIssuer,
	history historyRecorder,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		ledger:    ledger,
		sessions:  sessions,
		issuer:    issuer,
		history:   history,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Register creates a new principal with the default role.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	hash, err := password.Hash(s.config.Pepper, req.Email, req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
		Verified:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.users.AssignRoleByName(ctx, user.ID, models.RoleUser); err != nil {
		return nil, err
	}

	s.history.Record(models.AccountHistory{UserID: user.ID, Event: models.HistoryEventRegister})

	return &models.UserInfo{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     []string{models.RoleUser},
	}, nil
}

// Login authenticates a principal and opens a device session. The session
// index is written before the ledger; if the ledger write then fails the
// access token stays honorable until its TTL with no refresh possible —
// durable consistency is favored for refresh, the TTL bounds the rest.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			s.metrics.CountLogin(ResultFailure)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, err
	}

	if !user.Active {
		s.metrics.CountLogin(ResultFailure)
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if !password.Verify(user.PasswordHash, s.config.Pepper, user.Email, req.Password) {
		s.metrics.CountLogin(ResultFailure)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	roles, err := s.users.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	pair, issuedAt, err := s.openSession(ctx, user, roles, req.DeviceID)
	if err != nil {
		s.metrics.CountLogin(ResultFailure)
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.history.Record(models.AccountHistory{
		UserID:    user.ID,
		Event:     models.HistoryEventLogin,
		DeviceID:  req.DeviceID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
	s.metrics.CountLogin(ResultSuccess)

	return &models.LoginResponse{
		TokenPair: *pair,
		ExpiresIn: int64(s.config.AccessExpiry.Seconds()),
		IssuedAt:  issuedAt,
		User: models.UserInfo{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Roles:     roles,
		},
	}, nil
}

// Refresh rotates a refresh token into a fresh token pair. Rotation is
// unconditional on success: the presented token's record is deactivated and
// exactly one new active record replaces it in the lineage.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.issuer.DecodeRefresh(req.RefreshToken)
	if err != nil {
		s.metrics.CountRefresh(ResultFailure)
		return nil, err
	}

	rec, err := s.ledger.FindByTokenID(ctx, claims.ID)
	if err != nil {
		s.metrics.CountRefresh(ResultFailure)
		if appErrors.Is(err, appErrors.ErrNotFound) {
			// Signature-valid but absent from the ledger: terminal, but not
			// evidence of rotation reuse.
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not recognized")
		}
		return nil, err
	}

	if rec.UserID != claims.Subject {
		s.metrics.CountRefresh(ResultFailure)
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "refresh token subject mismatch")
	}

	if !rec.Active {
		// The record exists but was already rotated or revoked: someone is
		// replaying an old token. Lock the whole account down.
		s.handleReplay(ctx, rec.UserID, req)
		return nil, appErrors.Clone(appErrors.ErrTokenInactive, "refresh token already used")
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		s.metrics.CountRefresh(ResultFailure)
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, err
	}
	if !user.Active {
		s.metrics.CountRefresh(ResultFailure)
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	// Roles are re-derived from the principal on every rotation; the old
	// token's claims are never carried forward.
	roles, err := s.users.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Deactivate(ctx, rec.TokenID, time.Now().UTC()); err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			// Lost the rotation race: a concurrent refresh already consumed
			// this token. Same treatment as replay.
			s.handleReplay(ctx, rec.UserID, req)
			return nil, appErrors.Clone(appErrors.ErrConflict, "refresh token already rotated")
		}
		s.metrics.CountRefresh(ResultFailure)
		return nil, err
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = rec.DeviceID
	}

	pair, issuedAt, err := s.openSession(ctx, user, roles, deviceID)
	if err != nil {
		s.metrics.CountRefresh(ResultFailure)
		return nil, err
	}

	s.history.Record(models.AccountHistory{
		UserID:    user.ID,
		Event:     models.HistoryEventRefresh,
		DeviceID:  deviceID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
	s.metrics.CountRefresh(ResultSuccess)

	return &models.RefreshResponse{
		TokenPair: *pair,
		ExpiresIn: int64(s.config.AccessExpiry.Seconds()),
		IssuedAt:  issuedAt,
	}, nil
}

// LogoutDevice closes one device session. Both halves are idempotent, so a
// client retrying after a dropped response sees no error.
func (s *AuthService) LogoutDevice(ctx context.Context, userID, deviceID, ip, userAgent string) error {
	if err := s.sessions.RemoveDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	if err := s.ledger.DeactivateDevice(ctx, userID, deviceID, time.Now().UTC()); err != nil {
		return err
	}

	s.history.Record(models.AccountHistory{
		UserID:    userID,
		Event:     models.HistoryEventLogout,
		DeviceID:  deviceID,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	s.metrics.CountLogout("device")
	return nil
}

// LogoutAll revokes every session of the user: the whole index entry is
// deleted and every active ledger row deactivated. After it returns no
// previously issued token for the user is honorable.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip, userAgent string) error {
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		return err
	}
	if err := s.ledger.DeactivateAll(ctx, userID, time.Now().UTC()); err != nil {
		return err
	}

	s.history.Record(models.AccountHistory{
		UserID:    userID,
		Event:     models.HistoryEventLogoutAll,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	s.metrics.CountLogout("all")
	return nil
}

// ChangePassword verifies the old secret, re-hashes, and revokes every
// outstanding refresh token so stolen sessions die with the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !password.Verify(user.PasswordHash, s.config.Pepper, user.Email, req.OldPassword) {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := password.Hash(s.config.Pepper, user.Email, req.NewPassword)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash, time.Now().UTC()); err != nil {
		return err
	}

	if err := s.ledger.DeactivateAll(ctx, userID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		s.logger.Warn("failed to clear session index after password change", zap.String("user_id", userID), zap.Error(err))
	}

	s.history.Record(models.AccountHistory{UserID: userID, Event: models.HistoryEventPasswordChange})
	return nil
}

// ValidateAccess checks an access token against both its signature and the
// session index. A signature-valid token whose session is gone (bulk logout,
// TTL expiry) is rejected: the index is the revocation authority.
func (s *AuthService) ValidateAccess(ctx context.Context, raw string) (*models.AccessClaims, error) {
	claims, err := s.issuer.DecodeAccess(raw)
	if err != nil {
		return nil, err
	}

	live, err := s.sessions.HasToken(ctx, claims.Subject, raw)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session revoked or expired")
	}

	return claims, nil
}

// ListSessions returns the user's live device sessions.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.DeviceSession, error) {
	devices, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.DeviceSession, 0, len(devices))
	for deviceID, tok := range devices {
		out = append(out, models.DeviceSession{DeviceID: deviceID, AccessToken: tok})
	}
	return out, nil
}

// openSession issues a token pair and records both halves: the access token
// in the session index, the refresh record in the ledger.
func (s *AuthService) openSession(ctx context.Context, user *models.User, roles []string, deviceID string) (*models.TokenPair, time.Time, error) {
	issuedAt := time.Now().UTC()

	access, _, err := s.issuer.IssueAccess(user.ID, user.Email, roles, s.config.AccessExpiry)
	if err != nil {
		return nil, time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refresh, tokenID, refreshExp, err := s.issuer.IssueRefresh(user.ID, s.config.RefreshExpiry)
	if err != nil {
		return nil, time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	if err := s.sessions.Add(ctx, user.ID, deviceID, access); err != nil {
		return nil, time.Time{}, err
	}

	if err := s.ledger.Create(ctx, &models.RefreshRecord{
		TokenID:   tokenID,
		UserID:    user.ID,
		DeviceID:  deviceID,
		IssuedAt:  issuedAt,
		ExpiresAt: refreshExp,
		Active:    true,
	}); err != nil {
		return nil, time.Time{}, err
	}

	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, issuedAt, nil
}

// handleReplay is the response to a rotated refresh token being presented
// again: count it, log it, and invalidate every session of the account.
func (s *AuthService) handleReplay(ctx context.Context, userID string, req models.RefreshRequest) {
	s.metrics.CountRefresh(ResultFailure)
	s.metrics.CountReplay()
	s.logger.Warn("refresh token replay detected, revoking all sessions",
		zap.String("user_id", userID),
		zap.String("device_id", req.DeviceID),
		zap.String("ip", req.IP),
	)

	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		s.logger.Error("replay lockout: failed to clear session index", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.ledger.DeactivateAll(ctx, userID, time.Now().UTC()); err != nil {
		s.logger.Error("replay lockout: failed to deactivate refresh records", zap.String("user_id", userID), zap.Error(err))
	}

	s.history.Record(models.AccountHistory{
		UserID:    userID,
		Event:     models.HistoryEventReplayLockout,
		DeviceID:  req.DeviceID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
}
