package policy

import "storefront/internal/domain/model"

// 注文を見られるのは本人か ADMIN。どちらか一方で足りる。
func CanReadOrder(p *model.Principal, order model.Order) bool {
	if p == nil {
		return false
	}
	return order.UserID == p.ID || p.Has(model.RoleAdmin)
}
