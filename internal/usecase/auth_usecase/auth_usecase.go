package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/validator"
)

// 平文のリセットトークンのバイト数
const resetTokenBytes = 20

type AuthUsecase struct {
	users    repository.UserRepository
	hasher   PasswordHasher
	verifier PasswordVerifier
	issuer   AccessTokenIssuer
	mailer   ResetMailer
	clock    Clock
	resetTTL time.Duration
	logger   *slog.Logger
}

// DI
func NewAuthUsecase(
	users repository.UserRepository,
	hasher PasswordHasher,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	mailer ResetMailer,
	clock Clock,
	resetTTL time.Duration,
	logger *slog.Logger,
) *AuthUsecase {
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthUsecase{
		users:    users,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		mailer:   mailer,
		clock:    clock,
		resetTTL: resetTTL,
		logger:   logger,
	}
}

type SignupInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SigninInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPasswordInput struct {
	ResetToken      string `json:"reset_token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// handlerがJSONとCookieにするための出力
type AuthOutput struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Signup は新しいユーザーを{USER}で作り、そのままログインさせる。
func (u *AuthUsecase) Signup(ctx context.Context, in SignupInput) (AuthOutput, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.Struct(in); err != nil {
		return AuthOutput{}, err
	}

	// パスワードをハッシュ化
	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	now := u.clock.Now()
	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed, // ハッシュを保存（平文は保存しない）
		Permissions:  []model.Role{model.RoleUser},
		TokenVersion: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthOutput{}, apperr.New(apperr.KindConflict, "email already in use")
		}
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	return u.issue(*user, now)
}

// Signin はメールとパスワードを確認してトークンを出す。
func (u *AuthUsecase) Signin(ctx context.Context, in SigninInput) (AuthOutput, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validator.Struct(in); err != nil {
		return AuthOutput{}, err
	}

	user, err := u.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthOutput{}, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
		}
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	//パスワード照合
	if ok := u.verifier.Verify(in.Password, user.PasswordHash); !ok {
		return AuthOutput{}, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}

	return u.issue(*user, u.clock.Now())
}

// Signout はtoken versionを上げて、発行済みのトークンを全部無効にする。
func (u *AuthUsecase) Signout(ctx context.Context, p *model.Principal) error {
	if p == nil {
		return nil
	}
	if err := u.users.IncrementTokenVersion(ctx, p.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindInternal, "db error", err)
	}
	return nil
}

// RequestReset は登録がなくても成功を返す（メールの存在を漏らさない）。
func (u *AuthUsecase) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.New(apperr.KindValidation, "email is required")
	}

	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		u.logger.Info("auth: reset requested for unknown email")
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	plain, err := generateResetToken()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "generate reset token", err)
	}
	hash := hashToken(plain)
	expiry := u.clock.Now().Add(u.resetTTL)

	user.ResetTokenHash = &hash
	user.ResetTokenExpiry = &expiry
	if err := u.users.Update(ctx, user); err != nil {
		return apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	if err := u.mailer.SendReset(ctx, user.Email, plain); err != nil {
		return apperr.Wrap(apperr.KindInternal, "send reset mail", err)
	}
	return nil
}

// ResetPassword はトークンを確認してパスワードを変え、ログインさせる。
func (u *AuthUsecase) ResetPassword(ctx context.Context, in ResetPasswordInput) (AuthOutput, error) {
	if in.Password != in.ConfirmPassword {
		return AuthOutput{}, apperr.New(apperr.KindValidation, "your passwords don't match")
	}
	if err := validator.Struct(in); err != nil {
		return AuthOutput{}, err
	}

	now := u.clock.Now()
	user, err := u.users.FindByResetTokenHash(ctx, hashToken(in.ResetToken), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthOutput{}, apperr.New(apperr.KindValidation, "this token is either invalid or expired")
		}
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	user.PasswordHash = hashed
	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	user.UpdatedAt = now
	if err := u.users.Update(ctx, user); err != nil {
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "db error", err)
	}

	return u.issue(*user, now)
}

func (u *AuthUsecase) issue(user model.User, now time.Time) (AuthOutput, error) {
	token, exp, err := u.issuer.Issue(user.ID, user.TokenVersion, now)
	if err != nil {
		return AuthOutput{}, apperr.Wrap(apperr.KindInternal, "issue token", err)
	}
	return AuthOutput{User: user, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// 平文はメールにだけ載せる
func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DBにはsha256だけ保存
func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
