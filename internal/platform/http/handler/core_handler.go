package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Envelope messages shared by every route group.
const (
	MsgNotFound      = "Endpoint not found"
	MsgInternalError = "Internal server error"
	MsgCORSWorking   = "CORS is working!"
)

// Error writes {"status":"error","message":msg} and aborts the chain.
func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": msg})
}

// AbortInternal records err on the context and answers with the 500 envelope.
func AbortInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, MsgInternalError)
}

// NotFound は未定義ルート用の 404 エンベロープを返します。
func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, MsgNotFound)
}

// Recovery は panic を 500 エンベロープに変換し、zap に記録します。
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		log.Error("panic recovered",
			zap.Any("panic", rec),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		Error(c, http.StatusInternalServerError, MsgInternalError)
	})
}

// ErrorLogger は c.Errors に積まれたエラーをリクエスト単位で記録します。
func ErrorLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.Error(e.Err),
			)
		}
	}
}

// APITest は CORS 疎通確認用のエンドポイントです（GET / OPTIONS）。
func APITest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": MsgCORSWorking})
}

// DebugInfo is the body of GET /api/debug. It never carries credentials.
type DebugInfo struct {
	Status      string        `json:"status"`
	Environment string        `json:"environment"`
	Database    DatabaseDebug `json:"database"`
	Redis       string        `json:"redis"`
	Realtime    string        `json:"realtime"`
}

// DatabaseDebug describes the selected database without its URL.
type DatabaseDebug struct {
	Driver    string `json:"driver"`
	SourceEnv string `json:"source_env"`
	Connected bool   `json:"connected"`
}

// NewDebug returns the /api/debug handler. info is evaluated per request.
func NewDebug(info func(c *gin.Context) DebugInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, info(c))
	}
}
