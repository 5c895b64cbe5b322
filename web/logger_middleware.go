package web

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"edgerisk/logger"
)

// GinLoggerMiddleware 请求日志中间件。
// logAll=true 时全量输出，否则仅记录状态码 >= 400 的请求。
func GinLoggerMiddleware(logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		if !logAll && statusCode < 400 {
			return
		}

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()
		logMessage := fmt.Sprintf("[GIN] %d | %v | %s | %-7s %s",
			statusCode, latency, c.ClientIP(), c.Request.Method, path)
		if errorMessage != "" {
			logMessage += " | Error: " + errorMessage
		}

		logger.WriteWebLog(logMessage)
	}
}
