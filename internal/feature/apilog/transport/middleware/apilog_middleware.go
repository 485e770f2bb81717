// Package middleware はAPIリクエストを記録するginミドルウェアを提供します。
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"brokerdesk/internal/feature/apilog/domain/entity"
)

// Recorder はAPIログの書き込み先です。
type Recorder interface {
	Enqueue(rec entity.APILog) bool
}

// Middleware はリクエストごとにAPIログを1件 rec に渡します。
// skip に前方一致するパスは記録しません。
func Middleware(rec Recorder, skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range skip {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		rec.Enqueue(entity.APILog{
			Method:      c.Request.Method,
			Path:        path,
			Status:      c.Writer.Status(),
			RemoteAddr:  c.ClientIP(),
			RequestData: truncate(c.Request.URL.RawQuery, entity.MaxRequestDataBytes),
			LatencyMs:   time.Since(start).Milliseconds(),
			CreatedAt:   start,
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
