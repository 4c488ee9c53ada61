package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kinoplex/auth-api/internal/models"
)

func testContext(headers map[string]string, query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestDeviceIdentityExplicitWins(t *testing.T) {
	c := testContext(map[string]string{"User-Agent": "Mozilla/5.0"}, "")
	assert.Equal(t, "laptop", deviceIdentity(c, "laptop"))
}

func TestDeviceIdentityHeaderBeforeUserAgent(t *testing.T) {
	c := testContext(map[string]string{"X-Device-ID": "tablet", "User-Agent": "Mozilla/5.0"}, "")
	assert.Equal(t, "tablet", deviceIdentity(c, ""))
}

func TestDeviceIdentityFallsBackToUserAgentDigest(t *testing.T) {
	c := testContext(map[string]string{"User-Agent": "Mozilla/5.0"}, "")
	id := deviceIdentity(c, "")
	assert.Len(t, id, len("ua-")+12)
	assert.Contains(t, id, "ua-")

	// Same user agent, same bucket.
	c2 := testContext(map[string]string{"User-Agent": "Mozilla/5.0"}, "")
	assert.Equal(t, id, deviceIdentity(c2, ""))

	c3 := testContext(map[string]string{"User-Agent": "curl/8.0"}, "")
	assert.NotEqual(t, id, deviceIdentity(c3, ""))
}

func TestDeviceIdentityUnknownBucket(t *testing.T) {
	c := testContext(nil, "")
	assert.Equal(t, models.DeviceUnknown, deviceIdentity(c, ""))
}

func TestPaginationParams(t *testing.T) {
	c := testContext(nil, "page=3&page_size=50")
	page, pageSize := paginationParams(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, pageSize)

	c = testContext(nil, "page=-1&page_size=5000")
	page, pageSize = paginationParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)

	c = testContext(nil, "")
	page, pageSize = paginationParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
}
