package repository

import "errors"

// 見つからないを統一
var ErrNotFound = errors.New("not found")

// 一意制約違反（メール重複など）
var ErrDuplicate = errors.New("duplicate")

// 条件付き更新で、行が先に別の状態へ変わっていた
var ErrStale = errors.New("stale")
