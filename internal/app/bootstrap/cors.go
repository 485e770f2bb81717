package bootstrap

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// preflightRoutes are answered by their own OPTIONS handler instead of the cors middleware.
var preflightRoutes = []string{"/api/test", "/healthz"}

// corsConfig reflects any origin with credentials.
func corsConfig() cors.Config {
	return cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// corsMiddleware は cors.New を適用します。
// passthrough のパスへの OPTIONS はプリフライト用ヘッダーだけ付け、ルートのハンドラーまで進めます
// （cors.New はプリフライトを 204 で打ち切り、本文を書かせない）。
func corsMiddleware(cfg cors.Config, passthrough ...string) gin.HandlerFunc {
	handle := cors.New(cfg)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions || !slices.Contains(passthrough, c.Request.URL.Path) {
			handle(c)
			return
		}

		// コピー側を中断させ、ヘッダーは元のレスポンスに書く
		cp := c.Copy()
		w := &headerOnlyWriter{ResponseWriter: c.Writer}
		cp.Writer = w
		handle(cp)
		if w.status == http.StatusForbidden {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}

// headerOnlyWriter は共有のヘッダーを公開し、ステータスの書き込みだけを記録します。
type headerOnlyWriter struct {
	gin.ResponseWriter
	status int
}

func (w *headerOnlyWriter) WriteHeader(code int) { w.status = code }

func (w *headerOnlyWriter) WriteHeaderNow() {}
