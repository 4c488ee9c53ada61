// Package password implements credential hashing and verification. Hashes
// are bcrypt over pepper+email+secret: the pepper is a deployment-wide
// secret, the email acts as a per-identity salt on top of bcrypt's own.
package password

import (
	"golang.org/x/crypto/bcrypt"
)

// Hash derives a storable hash for the presented secret.
func Hash(pepper, email, secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(material(pepper, email, secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether the presented secret matches the stored hash.
// Comparison is constant time (bcrypt). Any hashing error is a non-match,
// never a bypass.
func Verify(storedHash, pepper, email, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), material(pepper, email, secret)) == nil
}

func material(pepper, email, secret string) []byte {
	buf := make([]byte, 0, len(pepper)+len(email)+len(secret))
	buf = append(buf, pepper...)
	buf = append(buf, email...)
	buf = append(buf, secret...)
	return buf
}
