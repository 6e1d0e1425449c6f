// Package policy は権限判定だけを行う。DBには触らない。
package policy

import (
	"storefront/internal/apperr"
	"storefront/internal/domain/model"
)

// Authorize はpが required のどれか1つでも持っていれば許可する（OR）。
// requiredが空ならログインしていればよい。
func Authorize(p *model.Principal, required ...model.Role) error {
	if p == nil {
		return apperr.New(apperr.KindUnauthenticated, "you must be signed in to do that")
	}
	if len(required) == 0 || HasAny(p, required...) {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "you don't have permission to do that")
}

// AuthorizeOwnerOr は所有者なら即許可、違えばロールで判定する。
func AuthorizeOwnerOr(p *model.Principal, ownerID int64, required ...model.Role) error {
	if p == nil {
		return apperr.New(apperr.KindUnauthenticated, "you must be signed in to do that")
	}
	if ownerID != 0 && p.ID == ownerID {
		return nil
	}
	if len(required) == 0 {
		return apperr.New(apperr.KindForbidden, "you do not own that")
	}
	return Authorize(p, required...)
}

func HasAny(p *model.Principal, roles ...model.Role) bool {
	for _, r := range roles {
		if p.Has(r) {
			return true
		}
	}
	return false
}
