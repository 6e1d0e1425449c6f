package usecase

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// AuthContext はトークンを呼び出し元(Principal)に変える。
// 失敗はすべて「未ログイン」(nil) として扱い、エラーは返さない。
type AuthContext struct {
	verifier TokenVerifier
	users    repo.UserRepository
}

// DI
func NewAuthContext(verifier TokenVerifier, users repo.UserRepository) *AuthContext {
	return &AuthContext{verifier: verifier, users: users}
}

func (a *AuthContext) Resolve(ctx context.Context, credential string) *model.Principal {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}

	userID, tokenVersion, err := a.verifier.Verify(credential)
	if err != nil {
		return nil
	}

	user, err := a.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return nil
	}

	// サインアウト後の古いトークン
	if user.TokenVersion != tokenVersion {
		return nil
	}

	p := user.Principal()
	return &p
}
