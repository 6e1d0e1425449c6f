package repository

import (
	"errors"

	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// postgresの一意制約違反
const uniqueViolation = "23505"

// gormのエラーをrepositoryのエラーに寄せる
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repo.ErrDuplicate
	}
	return err
}
