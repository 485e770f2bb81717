// Package handler はauthフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"brokerdesk/internal/feature/auth/domain/entity"
	"brokerdesk/internal/feature/auth/transport/http/dto"
	"brokerdesk/internal/feature/auth/usecase"
	corehandler "brokerdesk/internal/platform/http/handler"
	"brokerdesk/internal/platform/session"
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgMissingFields      = "Username and password are required"
)

// AuthUsecase は認証操作のユースケースを定義します。
// Goの慣例に従い、インターフェースはプロバイダー（usecase）ではなくコンシューマー（handler）が定義します。
type AuthUsecase interface {
	// Login はユーザーを認証し、成功時に新しいセッションレコードを返します。
	Login(ctx context.Context, username, password string, meta usecase.ClientMeta) (*entity.Session, error)
	// Logout はセッションレコードを失効させます。
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler はログイン画面とログアウトを処理します。
type AuthHandler struct {
	auth        AuthUsecase
	sessions    *session.Manager
	loginLimit  gin.HandlerFunc
	successPath string
	log         *zap.Logger
}

// NewAuthHandler はAuthHandlerの新しいインスタンスを生成します。
// loginLimit は POST /auth/login の前段に挟むミドルウェアで、nil の場合は制限しません。
func NewAuthHandler(auth AuthUsecase, sessions *session.Manager, loginLimit gin.HandlerFunc, successPath string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		sessions:    sessions,
		loginLimit:  loginLimit,
		successPath: successPath,
		log:         log,
	}
}

// Register は /auth 配下のルートを登録します。
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/login", h.LoginPage)
	if h.loginLimit != nil {
		rg.POST("/login", h.loginLimit, h.Login)
	} else {
		rg.POST("/login", h.Login)
	}
	rg.GET("/logout", h.Logout)
}

// LoginPage はログインフォームを表示します。ログイン済みなら検索画面へリダイレクトします。
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if session.IsLoggedIn(c) {
		c.Redirect(http.StatusFound, h.successPath)
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{"Error": "", "Username": ""})
}

// Login はフォームの資格情報を検証し、セッションクッキーを発行します。
// - 入力不足は400でフォームを再表示
// - 認証失敗は401でフォームを再表示（ユーザー列挙を防ぐため理由は区別しない）
// - 成功時は302で検索画面へ
func (h *AuthHandler) Login(c *gin.Context) {
	var form dto.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		h.log.Warn("login validation failed", zap.Error(err), zap.String("remote_addr", c.ClientIP()))
		c.HTML(http.StatusBadRequest, "login.html", gin.H{"Error": msgMissingFields, "Username": form.Username})
		return
	}
	username := strings.TrimSpace(form.Username)

	s, err := h.auth.Login(c.Request.Context(), username, form.Password, usecase.ClientMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if !errors.Is(err, usecase.ErrInvalidCredentials) {
			corehandler.AbortInternal(c, err)
			return
		}
		h.log.Warn("login failed", zap.String("username", username), zap.String("remote_addr", c.ClientIP()))
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"Error": msgInvalidCredentials, "Username": username})
		return
	}

	if err := h.sessions.Save(c, session.Session{ID: s.ID, Username: s.Username, LoggedIn: true}); err != nil {
		corehandler.AbortInternal(c, err)
		return
	}
	h.log.Info("user login successful", zap.String("username", s.Username), zap.String("remote_addr", c.ClientIP()))
	c.Redirect(http.StatusFound, h.successPath)
}

// Logout はセッションレコードを失効させ、クッキーを削除してログイン画面へ戻します。
func (h *AuthHandler) Logout(c *gin.Context) {
	if s, ok := session.Current(c); ok && s.ID != "" {
		if err := h.auth.Logout(c.Request.Context(), s.ID); err != nil {
			// クッキーは削除するので失効の失敗でログアウトを止めない
			h.log.Error("failed to revoke session", zap.String("sid", s.ID), zap.Error(err))
		} else {
			h.log.Info("user logged out", zap.String("username", s.Username))
		}
	}
	h.sessions.Clear(c)
	c.Redirect(http.StatusFound, "/auth/login")
}
