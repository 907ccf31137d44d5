package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantx/carbon-exchange/internal/adapter/in_memory"
	"github.com/verdantx/carbon-exchange/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func accountEcho(sessions *session.Manager) *gin.Engine {
	router := gin.New()
	router.Use(Account(sessions))
	router.GET("/whoami", func(c *gin.Context) {
		account, ok := AccountFrom(c)
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.String(http.StatusOK, account)
	})
	return router
}

func TestAccountFromAddressHeader(t *testing.T) {
	router := accountEcho(nil)
	addr := gofakeit.HexUint256()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Account-Address", addr)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, addr, w.Body.String())
}

func TestAccountFromSessionHeader(t *testing.T) {
	sessions := session.NewManager(in_memory.NewKV(), time.Hour)
	router := accountEcho(sessions)

	addr := gofakeit.HexUint256()
	s, err := sessions.Open(t.Context(), addr)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Session-ID", s.ID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, addr, w.Body.String())
}

func TestSessionHeaderWinsOverAddress(t *testing.T) {
	sessions := session.NewManager(in_memory.NewKV(), time.Hour)
	router := accountEcho(sessions)

	s, err := sessions.Open(t.Context(), "0xsession-owner")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Session-ID", s.ID)
	req.Header.Set("X-Account-Address", "0xsomeone-else")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xsession-owner", w.Body.String())
}

func TestUnknownSessionFallsBackToAddress(t *testing.T) {
	sessions := session.NewManager(in_memory.NewKV(), time.Hour)
	router := accountEcho(sessions)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Session-ID", gofakeit.UUID())
	req.Header.Set("X-Account-Address", "0xfallback")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xfallback", w.Body.String())
}

func TestNoIdentityYieldsNoAccount(t *testing.T) {
	router := accountEcho(nil)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	router := gin.New()
	router.Use(Account(nil), rl.Middleware())
	router.POST("/act", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(account string) int {
		req := httptest.NewRequest(http.MethodPost, "/act", nil)
		if account != "" {
			req.Header.Set("X-Account-Address", account)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, do(""))

	assert.Equal(t, http.StatusOK, do("0xalice"))
	assert.Equal(t, http.StatusTooManyRequests, do("0xalice"))
	assert.Equal(t, http.StatusOK, do("0xbob"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, http.StatusOK, do("0xalice"))
}

func TestRateLimiterSweepsStaleEntries(t *testing.T) {
	rl := NewRateLimiter(20 * time.Millisecond)
	router := gin.New()
	router.Use(Account(nil), rl.Middleware())
	router.POST("/act", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(account string) {
		req := httptest.NewRequest(http.MethodPost, "/act", nil)
		req.Header.Set("X-Account-Address", account)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	for i := 0; i < 50; i++ {
		do(gofakeit.HexUint256())
	}

	time.Sleep(30 * time.Millisecond)
	do("0xlast")

	// everything older than the window was dropped on that insert
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.seen, 1)
}
