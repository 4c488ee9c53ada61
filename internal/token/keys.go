package token

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kinoplex/auth-api/pkg/config"
)

const generatedKeyBits = 2048

// loadKeyPair resolves the signing key pair from config. Inline PEM wins
// over file paths; when neither is configured a throwaway pair is generated
// so development instances can start without provisioning keys.
func loadKeyPair(cfg config.TokenConfig) (*rsa.PrivateKey, *rsa.PublicKey, bool, error) {
	privPEM := cfg.PrivateKeyPEM
	pubPEM := cfg.PublicKeyPEM

	if privPEM == "" && cfg.PrivateKeyPath != "" {
		raw, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, nil, false, fmt.Errorf("read private key %s: %w", cfg.PrivateKeyPath, err)
		}
		privPEM = string(raw)
	}
	if pubPEM == "" && cfg.PublicKeyPath != "" {
		raw, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, nil, false, fmt.Errorf("read public key %s: %w", cfg.PublicKeyPath, err)
		}
		pubPEM = string(raw)
	}

	if privPEM == "" {
		priv, err := rsa.GenerateKey(rand.Reader, generatedKeyBits)
		if err != nil {
			return nil, nil, false, fmt.Errorf("generate signing key: %w", err)
		}
		return priv, &priv.PublicKey, true, nil
	}

	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privPEM))
	if err != nil {
		return nil, nil, false, fmt.Errorf("parse private key: %w", err)
	}

	pub := &priv.PublicKey
	if pubPEM != "" {
		parsed, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pubPEM))
		if err != nil {
			return nil, nil, false, fmt.Errorf("parse public key: %w", err)
		}
		pub = parsed
	}

	return priv, pub, false, nil
}
