package api

import (
	"errors"
	"net/http"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindUnavailable:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInsufficientStock, apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and replaced
// by a generic message.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("unhandled", err)
	}

	status := statusFor(appErr.Kind)
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{
			"error":   appErr.Kind.String(),
			"message": "internal server error",
		})
		return
	}

	body := gin.H{
		"error":   appErr.Kind.String(),
		"message": appErr.Message,
	}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if appErr.Kind == apperr.KindInsufficientStock {
		body["product"] = appErr.ProductID
		body["available"] = appErr.Available
		body["requested"] = appErr.Requested
	}
	c.AbortWithStatusJSON(status, body)
}
