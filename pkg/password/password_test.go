package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("pepper", "user@example.com", "Passw0rd1")
	require.NoError(t, err)

	assert.True(t, Verify(hash, "pepper", "user@example.com", "Passw0rd1"))
	assert.False(t, Verify(hash, "pepper", "user@example.com", "wrong"))
	assert.False(t, Verify(hash, "other-pepper", "user@example.com", "Passw0rd1"))
	assert.False(t, Verify(hash, "pepper", "other@example.com", "Passw0rd1"))
}

func TestVerifyFailsClosedOnGarbageHash(t *testing.T) {
	assert.False(t, Verify("not-a-bcrypt-hash", "pepper", "user@example.com", "secret"))
	assert.False(t, Verify("", "pepper", "user@example.com", "secret"))
}
