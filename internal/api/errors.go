package api

import (
	"net/http"

	"chat-gateway/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// HandleServiceError maps a service error kind to an HTTP status.
// Storage and authority failures are logged and hidden behind a generic body.
func HandleServiceError(c *gin.Context, err error) {
	switch service.KindOf(err) {
	case service.KindValidation:
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case service.KindAuthorization:
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case service.KindNotFound:
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case service.KindConflict:
		ErrorResponse(c, http.StatusConflict, err.Error())
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
