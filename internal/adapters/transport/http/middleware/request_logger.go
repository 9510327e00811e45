package middleware

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const redacted = "[redacted]"

// secretParams never reach the log in clear text.
var secretParams = []string{"jwt", "password", "validation"}

func scrubHeaders(h http.Header) http.Header {
	clone := h.Clone()
	for k := range clone {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "authorization") || strings.Contains(lk, "cookie") {
			clone[k] = []string{redacted}
		}
	}
	return clone
}

func scrubQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	clone := url.Values{}
	for k, v := range q {
		clone[k] = v
	}
	for _, p := range secretParams {
		if clone.Has(p) {
			clone.Set(p, redacted)
		}
	}
	return clone.Encode()
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqHeaders, _ := json.Marshal(scrubHeaders(c.Request.Header))
		log.Debug("incoming request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", scrubQuery(c.Request.URL.Query())),
			zap.String("origin", c.GetHeader("Origin")),
			zap.ByteString("hdr", reqHeaders),
		)

		ts := time.Now()
		c.Next()

		latency := time.Since(ts)
		respStatus := c.Writer.Status()

		// CORS или другой middleware прервал обработку
		if c.IsAborted() {
			log.Warn("aborted",
				zap.Int("status", respStatus),
				zap.Duration("latency", latency),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			return
		}

		for _, e := range c.Errors {
			log.Error("handler error",
				zap.Int("status", respStatus),
				zap.Error(e),
				zap.String("path", c.Request.URL.Path),
			)
		}

		log.Info("completed",
			zap.Int("status", respStatus),
			zap.Duration("latency", latency),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
