package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-gateway/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	err      error
	lastHint *string
}

func (s *stubResolver) ResolveCurrentUser(_ context.Context, address string, hint *string) (*models.User, error) {
	s.lastHint = hint
	if s.err != nil {
		return nil, s.err
	}
	return &models.User{ID: 1, Address: address, Username: "alice"}, nil
}

func newRouter(r UserResolver, l *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(Identify(r))
	if l != nil {
		e.Use(RateLimit(l))
	}
	e.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"address": CurrentUser(c).Address})
	})
	return e
}

func TestIdentifyRequiresAddress(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&stubResolver{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdentifySetsUser(t *testing.T) {
	res := &stubResolver{}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(AddressHeader, "0xabc")
	req.Header.Set(UsernameHeader, "alice")
	w := httptest.NewRecorder()
	newRouter(res, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"0xabc"}`, w.Body.String())
	require.NotNil(t, res.lastHint)
	assert.Equal(t, "alice", *res.lastHint)
}

func TestIdentifyAcceptsQueryParams(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&stubResolver{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?address=0xdef", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentifyResolverFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(AddressHeader, "0xabc")
	w := httptest.NewRecorder()
	newRouter(&stubResolver{err: errors.New("db down")}, nil).ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimitPerAddress(t *testing.T) {
	l := NewRateLimiter(0.001, 2)
	r := newRouter(&stubResolver{}, l)

	call := func(address string) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AddressHeader, address)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("0xa"))
	assert.Equal(t, http.StatusOK, call("0xa"))
	assert.Equal(t, http.StatusTooManyRequests, call("0xa"))
	assert.Equal(t, http.StatusOK, call("0xb"), "buckets are per address")
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("0xa")

	now = now.Add(limiterIdle + time.Second)
	l.Allow("0xb")
	assert.Equal(t, 1, l.Prune())
}
