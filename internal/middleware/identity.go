package middleware

import (
	"context"
	"net/http"
	"strings"

	"chat-gateway/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	AddressHeader  = "X-Chat-Address"
	UsernameHeader = "X-Chat-Username"

	userKey = "chat_user"
)

// UserResolver turns the asserted address and optional username hint into
// a user. Verifying the assertion is the transport's job, not ours.
type UserResolver interface {
	ResolveCurrentUser(ctx context.Context, address string, usernameHint *string) (*models.User, error)
}

// Identify resolves the caller from request headers. The websocket
// endpoint may pass them as query parameters instead.
func Identify(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := strings.TrimSpace(c.GetHeader(AddressHeader))
		if address == "" {
			address = strings.TrimSpace(c.Query("address"))
		}
		if address == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "caller address is required"})
			return
		}
		var hint *string
		if name := strings.TrimSpace(c.GetHeader(UsernameHeader)); name != "" {
			hint = &name
		} else if name := strings.TrimSpace(c.Query("username")); name != "" {
			hint = &name
		}

		user, err := resolver.ResolveCurrentUser(c.Request.Context(), address, hint)
		if err != nil {
			logrus.WithField("address", address).WithError(err).Error("Failed to resolve caller")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not resolve caller"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the caller set by Identify.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
