package handler

import (
	"errors"
	"net/http"
	"strconv"

	"prs/internal/apperror"
	"prs/internal/middleware"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError turns a service error into the error envelope. Internal failures
// are logged with their cause and reach the client only as a generic message.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperror.KindInternal {
		log.Error("request failed",
			zap.String("request_id", middleware.RequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		status := http.StatusInternalServerError
		c.JSON(status, response.Error(status, string(apperror.KindInternal), "Internal server error"))
		return
	}

	status := apperror.HTTPStatus(appErr.Kind)
	c.JSON(status, response.Error(status, appErr.Code, appErr.Message))
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, string(apperror.KindValidation), "Invalid request payload: "+err.Error()))
}

// parseID reads a positive numeric path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, string(apperror.KindValidation), "Invalid "+name+": must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// actorID reads the user set by RequireAuth.
func actorID(c *gin.Context) (uint, bool) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, string(apperror.KindUnauthorized), "Authentication required"))
		return 0, false
	}
	return id, true
}
