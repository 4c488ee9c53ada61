package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	DeviceID  string `json:"device_id" validate:"required"`
	SetCookie bool   `json:"set_cookie"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	DeviceID     string `json:"device_id" validate:"required"`
	SetCookie    bool   `json:"set_cookie"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RegisterRequest creates a new principal.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// TokenPair is the value object returned to callers. Its halves live in
// different stores: the access token in the session index (TTL), the refresh
// token's record in the durable ledger.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	TokenPair
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  time.Time `json:"issued_at"`
	User      UserInfo  `json:"user"`
}

// RefreshResponse returns the rotated token pair.
type RefreshResponse struct {
	TokenPair
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

// AccessClaims is the fixed, versioned payload of access tokens. Claims are
// a closed struct rather than an open map so the signed schema stays stable
// for downstream verifiers.
type AccessClaims struct {
	Roles []string `json:"roles"`
	Email string   `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims carry only subject, id and expiry. Authorization claims are
// deliberately absent: roles may change between issuance and redemption and
// are re-derived from the principal at refresh time.
type RefreshClaims struct {
	jwt.RegisteredClaims
}
