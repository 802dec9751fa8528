package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"drone_routes/internal/middleware"
	"drone_routes/internal/objectstore"
	"drone_routes/internal/services"
)

// respondError maps a service failure onto an HTTP status.
func respondError(c *gin.Context, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		status := http.StatusInternalServerError
		switch svcErr.Kind {
		case services.KindBadRequest:
			status = http.StatusBadRequest
		case services.KindNotFound:
			status = http.StatusNotFound
		case services.KindConflict:
			status = http.StatusConflict
		case services.KindUnauthorized:
			status = http.StatusUnauthorized
		}
		if status == http.StatusInternalServerError {
			requestLog(c).WithError(err).Error("Request failed")
			c.JSON(status, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(status, gin.H{"error": svcErr.Message})
		return
	}

	var storeErr *objectstore.Error
	if errors.As(err, &storeErr) {
		requestLog(c).WithError(err).Error("Object store request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Photo storage unavailable"})
		return
	}

	requestLog(c).WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func requestLog(c *gin.Context) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"request_id": c.GetString(middleware.ContextRequestID),
		"path":       c.FullPath(),
	})
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return uint(id), true
}
