package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestLogger emits one structured log line per request. The gin default
// logger stays off so everything goes through zerolog.
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	evt := log.Info()
	if c.Writer.Status() >= 500 {
		evt = log.Error()
	}
	evt.Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}
