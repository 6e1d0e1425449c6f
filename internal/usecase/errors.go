package usecase

import (
	"errors"

	"storefront/internal/apperr"
	repo "storefront/internal/repository"
)

// repositoryのエラーをアプリのエラーに変える
func storeErr(err error, notFoundMsg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, notFoundMsg)
	}
	return apperr.Wrap(apperr.KindInternal, "db error", err)
}
