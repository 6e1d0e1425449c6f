package model

// 認証済みの呼び出し元。未ログインは nil *Principal で表す。
type Principal struct {
	ID          int64
	Permissions []Role
}

func (p *Principal) Has(role Role) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Permissions {
		if r == role {
			return true
		}
	}
	return false
}
