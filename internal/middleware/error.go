package middleware

import (
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/bulkgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle if there are errors
		if len(c.Errors) == 0 {
			return
		}

		appErr := apperrors.Wrap(c.Errors.Last().Err)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}

		ctx := c.Request.Context()
		if appErr.HTTPStatus >= 500 {
			logger.LogError(ctx, appErr, "Internal Server Error", logFields...)
		} else {
			logger.FromContext(ctx).Warn(appErr.Message, logFields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}
