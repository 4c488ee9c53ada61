// Package token mints and verifies the signed credentials of the service.
// Signing is asymmetric (RS256): only this service holds the private key,
// any collaborator holding the public key can verify access tokens without a
// store round-trip.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kinoplex/auth-api/internal/models"
	"github.com/kinoplex/auth-api/pkg/config"
	appErrors "github.com/kinoplex/auth-api/pkg/errors"
)

// Issuer signs access and refresh tokens with the process key pair.
type Issuer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   []string
	generated  bool
}

// NewIssuer loads (or generates) the key pair and builds an Issuer.
func NewIssuer(cfg config.TokenConfig) (*Issuer, error) {
	priv, pub, generated, err := loadKeyPair(cfg)
	if err != nil {
		return nil, err
	}
	return &Issuer{
		privateKey: priv,
		publicKey:  pub,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		generated:  generated,
	}, nil
}

// GeneratedKeys reports whether the issuer runs on a throwaway key pair.
func (i *Issuer) GeneratedKeys() bool { return i.generated }

// PublicKey exposes the verification key for distribution to collaborators.
func (i *Issuer) PublicKey() *rsa.PublicKey { return i.publicKey }

// IssueAccess mints a short-lived access token embedding the subject's
// authorization claims.
func (i *Issuer) IssueAccess(subject, email string, roles []string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.AccessClaims{
		Roles: roles,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  i.audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefresh mints a long-lived refresh token. It carries no authorization
// claims; the returned token ID is the ledger key for the new record.
func (i *Issuer) IssueRefresh(subject string, ttl time.Duration) (string, string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	tokenID := uuid.NewString()
	claims := &models.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        tokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, tokenID, expiresAt, nil
}

// DecodeAccess verifies an access token and returns its claims.
func (i *Issuer) DecodeAccess(raw string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	if err := i.decode(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeRefresh verifies a refresh token and returns its claims.
func (i *Issuer) DecodeRefresh(raw string) (*models.RefreshClaims, error) {
	claims := &models.RefreshClaims{}
	if err := i.decode(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) decode(raw string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return mapDecodeError(err)
	}
	if !parsed.Valid {
		return appErrors.Clone(appErrors.ErrTokenMalformed, "token claims are invalid")
	}
	return nil
}

// mapDecodeError translates jwt parse failures into the terminal error kinds
// callers dispatch on. None of them are retryable.
func mapDecodeError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, appErrors.ErrTokenExpired.Message)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return appErrors.Wrap(err, appErrors.ErrInvalidSignature.Code, appErrors.ErrInvalidSignature.Status, appErrors.ErrInvalidSignature.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrTokenMalformed.Code, appErrors.ErrTokenMalformed.Status, appErrors.ErrTokenMalformed.Message)
	}
}
