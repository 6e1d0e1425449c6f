package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// インメモリのストア
// =====================

type memStore struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]model.User
	items      map[int64]model.Item
	lines      map[int64]model.CartItem
	orders     map[int64]model.Order
	orderItems []model.OrderItem
	attempts   map[string]model.CheckoutAttempt
	audits     []model.AuditLog

	// 失敗させたい操作
	failOrderCreate   error
	failDeleteByIDs   error
	failAttemptUpdate error
	failAuditCreate   error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   100,
		users:    map[int64]model.User{},
		items:    map[int64]model.Item{},
		lines:    map[int64]model.CartItem{},
		orders:   map[int64]model.Order{},
		attempts: map[string]model.CheckoutAttempt{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addItem(it model.Item) model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == 0 {
		it.ID = s.id()
	}
	s.items[it.ID] = it
	return it
}

func (s *memStore) addLine(userID, itemID, qty int64) model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := model.CartItem{ID: s.id(), UserID: userID, ItemID: itemID, Quantity: qty}
	s.lines[l.ID] = l
	return l
}

func (s *memStore) linesOf(userID int64) []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesOfLocked(userID)
}

func (s *memStore) linesOfLocked(userID int64) []model.CartItem {
	out := []model.CartItem{}
	for _, l := range s.lines {
		if l.UserID == userID {
			l.Item = s.items[l.ItemID]
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) attemptList() []model.CheckoutAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CheckoutAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memSnapshot struct {
	nextID     int64
	users      map[int64]model.User
	items      map[int64]model.Item
	lines      map[int64]model.CartItem
	orders     map[int64]model.Order
	orderItems []model.OrderItem
	attempts   map[string]model.CheckoutAttempt
	audits     []model.AuditLog
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextID:     s.nextID,
		users:      map[int64]model.User{},
		items:      map[int64]model.Item{},
		lines:      map[int64]model.CartItem{},
		orders:     map[int64]model.Order{},
		orderItems: append([]model.OrderItem(nil), s.orderItems...),
		attempts:   map[string]model.CheckoutAttempt{},
		audits:     append([]model.AuditLog(nil), s.audits...),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	for k, v := range s.lines {
		snap.lines[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.attempts {
		snap.attempts[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.users = snap.users
	s.items = snap.items
	s.lines = snap.lines
	s.orders = snap.orders
	s.orderItems = snap.orderItems
	s.attempts = snap.attempts
	s.audits = snap.audits
}

// ---- TransactionManager ----

type memTx struct{ s *memStore }

func (t memTx) Orders() repo.OrderRepository                     { return memOrders{t.s} }
func (t memTx) OrderItems() repo.OrderItemRepository             { return memOrderItems{t.s} }
func (t memTx) CheckoutAttempts() repo.CheckoutAttemptRepository { return memAttempts{t.s} }
func (t memTx) CartItems() repo.CartItemRepository               { return memCartItems{t.s} }
func (t memTx) AuditLogs() repo.AuditLogRepository               { return memAudits{t.s} }
func (t memTx) Users() repo.UserRepository                       { return memUsers{t.s} }
func (t memTx) Items() repo.ItemRepository                       { return memItems{t.s} }

type memTxManager struct{ s *memStore }

// 失敗したら中で行った変更を全部戻す
func (m memTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.s.mu.Lock()
	snap := m.s.snapshot()
	m.s.mu.Unlock()

	if err := fn(memTx{m.s}); err != nil {
		m.s.mu.Lock()
		m.s.restore(snap)
		m.s.mu.Unlock()
		return err
	}
	return nil
}

// ---- Users ----

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.users {
		if ex.Email == u.Email {
			return repo.ErrDuplicate
		}
	}
	u.ID = r.s.id()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r memUsers) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash && u.ResetTokenExpiry != nil && !u.ResetTokenExpiry.Before(now) {
			return &u, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r memUsers) List(ctx context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.User{}
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) Update(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) UpdatePermissions(ctx context.Context, id int64, perms []model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.Permissions = append([]model.Role(nil), perms...)
	r.s.users[id] = u
	return nil
}

func (r memUsers) IncrementTokenVersion(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.TokenVersion++
	r.s.users[id] = u
	return nil
}

// ---- Items ----

type memItems struct{ s *memStore }

func (r memItems) List(ctx context.Context, q repo.ItemListQuery) ([]model.Item, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []model.Item{}
	for _, it := range r.s.items {
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := (q.Page - 1) * q.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r memItems) FindByID(ctx context.Context, id int64) (model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return model.Item{}, repo.ErrNotFound
	}
	return it, nil
}

func (r memItems) Create(ctx context.Context, it model.Item) (model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it.ID = r.s.id()
	r.s.items[it.ID] = it
	return it, nil
}

func (r memItems) Update(ctx context.Context, it model.Item) (model.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[it.ID]; !ok {
		return model.Item{}, repo.ErrNotFound
	}
	r.s.items[it.ID] = it
	return it, nil
}

func (r memItems) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.items, id)
	for lid, l := range r.s.lines {
		if l.ItemID == id {
			delete(r.s.lines, lid)
		}
	}
	return nil
}

// ---- CartItems ----

type memCartItems struct{ s *memStore }

func (r memCartItems) IncrementOrCreate(ctx context.Context, userID, itemID int64) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, l := range r.s.lines {
		if l.UserID == userID && l.ItemID == itemID {
			l.Quantity++
			r.s.lines[id] = l
			return l, nil
		}
	}
	l := model.CartItem{ID: r.s.id(), UserID: userID, ItemID: itemID, Quantity: 1}
	r.s.lines[l.ID] = l
	return l, nil
}

func (r memCartItems) FindByID(ctx context.Context, id int64) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lines[id]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	l.Item = r.s.items[l.ItemID]
	return l, nil
}

func (r memCartItems) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.linesOfLocked(userID), nil
}

func (r memCartItems) DeleteByID(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lines[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.lines, id)
	return nil
}

func (r memCartItems) DeleteByIDs(ctx context.Context, userID int64, ids []int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failDeleteByIDs != nil {
		return 0, r.s.failDeleteByIDs
	}
	var n int64
	for _, id := range ids {
		if l, ok := r.s.lines[id]; ok && l.UserID == userID {
			delete(r.s.lines, id)
			n++
		}
	}
	return n, nil
}

// ---- Orders ----

type memOrders struct{ s *memStore }

func (r memOrders) FindByID(ctx context.Context, id int64) (model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) ListByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Order{}
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memOrders) Create(ctx context.Context, o model.Order) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOrderCreate != nil {
		return 0, r.s.failOrderCreate
	}
	for _, ex := range r.s.orders {
		if ex.ChargeID == o.ChargeID {
			return 0, repo.ErrDuplicate
		}
	}
	o.ID = r.s.id()
	r.s.orders[o.ID] = o
	return o.ID, nil
}

type memOrderItems struct{ s *memStore }

func (r memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range items {
		items[i].OrderID = orderID
		items[i].ID = r.s.id()
		r.s.orderItems = append(r.s.orderItems, items[i])
	}
	return nil
}

func (r memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.OrderItem{}
	for _, it := range r.s.orderItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

// ---- CheckoutAttempts ----

type memAttempts struct{ s *memStore }

func (r memAttempts) Create(ctx context.Context, a model.CheckoutAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.attempts[a.ID]; ok {
		return repo.ErrDuplicate
	}
	r.s.attempts[a.ID] = a
	return nil
}

func (r memAttempts) FindByID(ctx context.Context, id string) (model.CheckoutAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attempts[id]
	if !ok {
		return model.CheckoutAttempt{}, repo.ErrNotFound
	}
	return a, nil
}

func (r memAttempts) FindUnresolvedByUserID(ctx context.Context, userID int64) (model.CheckoutAttempt, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.attempts {
		if a.UserID == userID && a.Status.Unresolved() {
			return a, true, nil
		}
	}
	return model.CheckoutAttempt{}, false, nil
}

func (r memAttempts) FindCompletedByClientKey(ctx context.Context, userID int64, key string) (model.CheckoutAttempt, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.attempts {
		if a.UserID == userID && a.ClientKey == key && a.Status == model.CheckoutStatusCompleted {
			return a, true, nil
		}
	}
	return model.CheckoutAttempt{}, false, nil
}

func (r memAttempts) List(ctx context.Context, f repo.CheckoutAttemptFilter) ([]model.CheckoutAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.CheckoutAttempt{}
	for _, a := range r.s.attempts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.UserID != nil && a.UserID != *f.UserID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAttempts) Update(ctx context.Context, a model.CheckoutAttempt, from model.CheckoutStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAttemptUpdate != nil {
		return r.s.failAttemptUpdate
	}
	cur, ok := r.s.attempts[a.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if cur.Status != from {
		return repo.ErrStale
	}
	r.s.attempts[a.ID] = a
	return nil
}

// ---- AuditLogs ----

type memAudits struct{ s *memStore }

func (r memAudits) Create(ctx context.Context, l model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAuditCreate != nil {
		return r.s.failAuditCreate
	}
	l.ID = r.s.id()
	r.s.audits = append(r.s.audits, l)
	return nil
}

func (r memAudits) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.AuditLog(nil), r.s.audits...), nil
}

// =====================
// その他の部品
// =====================

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("attempt-%d", g.n)
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

type recMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recMetrics) ObserveCheckout(outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) == 0 {
		return ""
	}
	return m.outcomes[len(m.outcomes)-1]
}

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	args := m.Called(ctx, req)
	ch, _ := args.Get(0).(payment.Charge)
	return ch, args.Error(1)
}

func (m *GatewayMock) Refund(ctx context.Context, chargeID string, amount int64, key string) (payment.Refund, error) {
	args := m.Called(ctx, chargeID, amount, key)
	r, _ := args.Get(0).(payment.Refund)
	return r, args.Error(1)
}

var errDB = errors.New("db is down")

func principal(id int64, roles ...model.Role) *model.Principal {
	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}
	return &model.Principal{ID: id, Permissions: roles}
}
