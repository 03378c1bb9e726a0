package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/httputil"
)

// ErrorHandler renders the last error attached with c.Error, unless a later
// middleware already wrote the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		reqLogger := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			event := reqLogger.Warn()
			if apperrors.CodeOf(e.Err) == apperrors.ErrInternal {
				event = reqLogger.Error()
			}
			event.
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
