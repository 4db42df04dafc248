package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// Recovery turns a panic into a 500 response.  Invariant violations raised by
// the miner keep their code; anything else is reported as internal.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(*errors.AppError)
			if !ok {
				err = errors.Newf(errors.ErrCodeInternal, "panic: %v", rec)
			}
			logger.Error("recovered from panic",
				logging.String("path", c.Request.URL.Path),
				logging.String("request_id", GetRequestID(c)),
				logging.String(logging.FieldErrorCode, err.Code.String()),
				logging.Err(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    err.Code.String(),
				"message": "internal server error",
			})
		}()
		c.Next()
	}
}
