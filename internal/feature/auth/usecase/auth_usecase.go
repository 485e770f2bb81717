package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"brokerdesk/internal/feature/auth/domain/entity"
)

const (
	// minPasswordLength はパスワードの最低文字数を定義します。
	minPasswordLength = 8

	// MaxSessionsPerUser はユーザーごとに同時に有効なセッション数の上限です。
	// 上限に達した状態でログインすると最も古いセッションを削除します。
	MaxSessionsPerUser = 5
)

// ユーザーが存在しない場合のタイミング攻撃緩和用ダミーハッシュ
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// UserRepository はユーザーエンティティの永続化層を抽象化します。
// Goの慣例に従い、インターフェースはプロバイダー（adapters）ではなくコンシューマー（usecase）が定義します。
type UserRepository interface {
	// Create は新しいユーザーをストレージに永続化します。
	// 同じユーザー名が既に存在する場合、ErrUsernameAlreadyExists を返します。
	Create(ctx context.Context, user *entity.User) error

	// FindByUsername は指定されたユーザー名に一致するユーザーを取得します。
	// ユーザーが存在しない場合、ErrUserNotFound を返します。
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
}

// ClientMeta は監査用にセッションへ記録するクライアント情報です。
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// AuthUsecase は認証ビジネスロジックを実装します。
type AuthUsecase struct {
	users    UserRepository
	sessions SessionRepository
	lifetime time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthUsecase はAuthUsecaseの新しいインスタンスを生成します。
// lifetime はセッションの有効期間で、Cookie の有効期間と一致させます。
func NewAuthUsecase(users UserRepository, sessions SessionRepository, lifetime time.Duration, log *zap.Logger) *AuthUsecase {
	return &AuthUsecase{
		users:    users,
		sessions: sessions,
		lifetime: lifetime,
		log:      log,
		now:      time.Now,
	}
}

// validatePassword はパスワードがセキュリティ要件を満たしているかチェックします。
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
	}
	return nil
}

// EnsureUser は username が存在しなければハッシュ化したパスワードで作成します。
// 既に存在する場合は何もせず false を返します。
func (u *AuthUsecase) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	_, err := u.users.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}

	if err := validatePassword(password); err != nil {
		return false, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := u.users.Create(ctx, &entity.User{Username: username, Password: string(hashed)}); err != nil {
		if errors.Is(err, ErrUsernameAlreadyExists) {
			// 並行起動した別プロセスが先に作成した
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Login はユーザーを認証し、成功時に新しいセッションレコードを返します。
// タイミング攻撃を防止するため、ユーザーが存在しない場合でもbcrypt比較を実行します。
func (u *AuthUsecase) Login(ctx context.Context, username, password string, meta ClientMeta) (*entity.Session, error) {
	user, err := u.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	passwordHash := dummyHash
	if err == nil {
		passwordHash = []byte(user.Password)
	}

	// 第1引数はハッシュ化パスワード、第2引数は平文パスワード
	compareErr := bcrypt.CompareHashAndPassword(passwordHash, []byte(password))
	if err != nil || compareErr != nil {
		return nil, ErrInvalidCredentials
	}

	if err := u.enforceSessionLimit(ctx, user.Username); err != nil {
		return nil, err
	}

	now := u.now()
	s := &entity.Session{
		ID:        uuid.NewString(),
		Username:  user.Username,
		UserAgent: truncate(meta.UserAgent, 512),
		IPAddress: truncate(meta.IPAddress, 45),
		CreatedAt: now,
		ExpiresAt: now.Add(u.lifetime),
	}
	if err := u.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// enforceSessionLimit は有効セッション数が上限に達している場合、最も古いものを削除します。
func (u *AuthUsecase) enforceSessionLimit(ctx context.Context, username string) error {
	count, err := u.sessions.CountByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	if count < MaxSessionsPerUser {
		return nil
	}
	u.log.Info("session limit reached, deleting oldest", zap.String("username", username), zap.Int64("active", count))
	if err := u.sessions.DeleteOldestByUsername(ctx, username); err != nil {
		return fmt.Errorf("failed to delete oldest session: %w", err)
	}
	return nil
}

// Logout はセッションを失効させます。存在しないセッションはエラーにしません。
func (u *AuthUsecase) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := u.sessions.Revoke(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// IsSessionActive は sessionID のレコードが存在し、失効も期限切れもしていないかを返します。
// ストアのエラーは未ログイン扱いにします。
func (u *AuthUsecase) IsSessionActive(ctx context.Context, sessionID string) bool {
	s, err := u.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			u.log.Warn("session lookup failed", zap.String("sid", sessionID), zap.Error(err))
		}
		return false
	}
	return s.IsValid()
}

// CleanupExpired は期限切れのセッションを削除します。
func (u *AuthUsecase) CleanupExpired(ctx context.Context) (int64, error) {
	return u.sessions.DeleteExpired(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
