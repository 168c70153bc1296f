package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"gpuwatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

// Logger logs each request with latency, status and, for submits, a
// compacted prefix of the body.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var bodyStr string
		if c.Request.Method == http.MethodPost {
			bodyStr = getRequestBody(c)
		}

		c.Next()

		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		latency := time.Since(startTime)
		msg := "%3d | %13v | %15s | %s | %s"
		args := []interface{}{
			c.Writer.Status(),
			latency,
			c.ClientIP(),
			c.Request.Method,
			c.Request.RequestURI,
		}
		if bodyStr != "" {
			msg += " | body: %s"
			args = append(args, bodyStr)
		}
		logger.DebugCtx(c.Request.Context(), msg, args...)
	}
}

// getRequestBody reads and restores the request body. Gzip submissions are
// logged as an opaque size only; decompressing twice just for a log line is
// not worth it.
func getRequestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if c.GetHeader("Content-Encoding") == "gzip" {
		return ""
	}
	return CompressBody(string(bodyBytes))
}

// CompressBody compacts JSON and truncates it for logging.
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > 1000 {
		return string(compressed[:1000]) + "..."
	}
	return string(compressed)
}
