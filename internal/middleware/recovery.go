package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/httputil"
)

// Recovery turns a handler panic into a 500 envelope. The stack goes to the
// log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			zerolog.Ctx(c.Request.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", c.FullPath()).
				Msg("handler panicked")

			if !c.Writer.Written() {
				httputil.RespondWithError(c, apperrors.NewInternal(fmt.Errorf("panic: %v", rec)))
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}
