package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/payment"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	store   *memStore
	gateway *GatewayMock
	locker  *memLocker
	metrics *recMetrics
	uc      *usecase.CheckoutUsecase
	user    model.User
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	s := newMemStore()
	f := &checkoutFixture{
		store:   s,
		gateway: new(GatewayMock),
		locker:  newMemLocker(),
		metrics: &recMetrics{},
	}
	f.user = s.addUser(model.User{Name: "alice", Email: "alice@example.com", Permissions: []model.Role{model.RoleUser}})
	f.uc = usecase.NewCheckoutUsecase(usecase.CheckoutDeps{
		Tx:         memTxManager{s},
		CartItems:  memCartItems{s},
		Attempts:   memAttempts{s},
		Orders:     memOrders{s},
		OrderItems: memOrderItems{s},
		Gateway:    f.gateway,
		Locker:     f.locker,
		Metrics:    f.metrics,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:      fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		IDGen:      &seqIDs{},
	}, usecase.CheckoutConfig{Currency: "USD", PaymentTimeout: time.Second, LockTTL: time.Minute})
	return f
}

func (f *checkoutFixture) me() *model.Principal {
	return principal(f.user.ID)
}

// 500×2 と 1000×1 のカート
func (f *checkoutFixture) fillCart() {
	a := f.store.addItem(model.Item{Title: "mug", Description: "a mug", Price: 500, UserID: 1})
	b := f.store.addItem(model.Item{Title: "shirt", Description: "a shirt", Price: 1000, UserID: 1})
	f.store.addLine(f.user.ID, a.ID, 2)
	f.store.addLine(f.user.ID, b.ID, 1)
}

func chargeFor(amount int64) func(req payment.ChargeRequest) bool {
	return func(req payment.ChargeRequest) bool { return req.Amount == amount }
}

func TestCheckout_Success(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(chargeFor(2000))).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "pm_card_visa"})
	require.NoError(t, err)

	assert.NoError(t, res.CartClearErr)
	assert.False(t, res.Replayed)
	assert.Equal(t, int64(2000), res.Order.Total)
	assert.Equal(t, "pi_1", res.Order.ChargeID)
	assert.Equal(t, "USD", res.Order.Currency)
	assert.Equal(t, f.user.ID, res.Order.UserID)
	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, "mug", res.Order.Items[0].Title)
	assert.Equal(t, int64(500), res.Order.Items[0].Price)
	assert.Equal(t, int64(2), res.Order.Items[0].Quantity)

	assert.Empty(t, f.store.linesOf(f.user.ID))
	assert.Equal(t, 1, f.store.orderCount())

	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusCompleted, attempts[0].Status)
	require.NotNil(t, attempts[0].OrderID)
	assert.Equal(t, res.Order.ID, *attempts[0].OrderID)
	assert.Equal(t, "completed", f.metrics.last())
	f.gateway.AssertExpectations(t)
}

func TestCheckout_UsesAttemptIDAsPaymentIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.IdempotencyKey == "attempt-1" && req.Token == "pm_card_visa" && req.Currency == "USD"
	})).Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: " pm_card_visa "})

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestCheckout_OrderTotalIsAmountCharged(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 1800}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, int64(1800), res.Order.Total)
}

func TestCheckout_Declined(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	cause := fmt.Errorf("%w: your card was declined", payment.ErrDeclined)
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(payment.Charge{}, cause).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrPaymentDeclined))
	assert.True(t, errors.Is(err, cause), "gateway error is kept")
	e, ok := apperr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, string(usecase.StatePriced), e.State)

	assert.Equal(t, 0, f.store.orderCount())
	assert.Len(t, f.store.linesOf(f.user.ID), 2)
	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusDeclined, attempts[0].Status)
	assert.Equal(t, "declined", f.metrics.last())
}

func TestCheckout_DeclinedDoesNotBlockNextCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(payment.Charge{}, payment.ErrDeclined).Once()
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(payment.Charge{ID: "pi_2", AmountCharged: 2000}, nil).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})
	require.Error(t, err)

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok2"})
	require.NoError(t, err)
	assert.Equal(t, "pi_2", res.Order.ChargeID)
	f.gateway.AssertNumberOfCalls(t, "Charge", 2)
}

func TestCheckout_AmbiguousChargeNeedsReconciliation(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{}, fmt.Errorf("%w: connection reset", payment.ErrAmbiguous)).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.True(t, errors.Is(err, apperr.ErrReconciliationRequired))
	assert.Equal(t, apperr.SeverityCritical, apperr.KindOf(err).Severity())
	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusReconciliationRequired, attempts[0].Status)
	assert.Len(t, f.store.linesOf(f.user.ID), 2)

	// 次のcheckoutでは課金しない
	_, err = f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})
	assert.True(t, errors.Is(err, apperr.ErrReconciliationRequired))
	f.gateway.AssertNumberOfCalls(t, "Charge", 1)
}

func TestCheckout_PersistFailureAfterChargeNeverRecharges(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.store.failOrderCreate = errDB
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReconciliationRequired))
	e, ok := apperr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, string(usecase.StateCharged), e.State)

	assert.Equal(t, 0, f.store.orderCount())
	assert.Len(t, f.store.linesOf(f.user.ID), 2)
	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusReconciliationRequired, attempts[0].Status)
	assert.Equal(t, "pi_1", attempts[0].ChargeID)
	assert.Nil(t, attempts[0].OrderID)
	assert.Equal(t, "reconciliation_required", f.metrics.last())

	// DBが直ってもcheckoutは照合待ち
	f.store.failOrderCreate = nil
	_, err = f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})
	assert.True(t, errors.Is(err, apperr.ErrReconciliationRequired))
	f.gateway.AssertNumberOfCalls(t, "Charge", 1)
}

func TestCheckout_DoesNotOverwriteResolvedAttempt(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	// 課金中に運用者がattemptを解決してしまった
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(payment.ChargeRequest)
			f.store.mu.Lock()
			a := f.store.attempts[req.IdempotencyKey]
			a.Status = model.CheckoutStatusResolved
			f.store.attempts[a.ID] = a
			f.store.mu.Unlock()
		}).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.True(t, errors.Is(err, apperr.ErrReconciliationRequired))
	assert.Equal(t, 0, f.store.orderCount())
	assert.Len(t, f.store.linesOf(f.user.ID), 2)
	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusResolved, attempts[0].Status)
	assert.Empty(t, attempts[0].ChargeID)
}

func TestCheckout_CartClearFailureStillReturnsOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.store.failDeleteByIDs = errDB
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	require.NoError(t, err)
	assert.NotZero(t, res.Order.ID)
	require.Error(t, res.CartClearErr)
	assert.True(t, errors.Is(res.CartClearErr, apperr.ErrCartClearFailed))
	assert.Equal(t, apperr.KindCartClearFailed, apperr.KindOf(res.CartClearErr))
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, "completed_with_warning", f.metrics.last())

	// 注文は完了しているので次のcheckoutはブロックされない
	attempts := f.store.attemptList()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.CheckoutStatusCompleted, attempts[0].Status)
}

func TestCheckout_LinesAddedDuringChargeAreKept(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	late := f.store.addItem(model.Item{Title: "late", Description: "added while paying", Price: 300, UserID: 1})
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			f.store.addLine(f.user.ID, late.ID, 1)
		}).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})
	require.NoError(t, err)

	assert.Len(t, res.Order.Items, 2)
	remaining := f.store.linesOf(f.user.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, late.ID, remaining[0].ItemID)
}

func TestCheckout_Anonymous(t *testing.T) {
	f := newCheckoutFixture(t)

	for _, token := range []string{"tok", "", "  "} {
		_, err := f.uc.Checkout(context.Background(), nil, usecase.CheckoutInput{PaymentToken: token})

		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated), "token %q: got %v", token, err)
		assert.Equal(t, "rejected", f.metrics.last())
	}
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_EmptyToken(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "  "})

	assert.True(t, errors.Is(err, apperr.ErrValidation))
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_LockContention(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.locker.held[fmt.Sprintf("checkout:%d", f.user.ID)] = true

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.True(t, errors.Is(err, apperr.ErrConflict))
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_LockErrorIsInternal(t *testing.T) {
	f := newCheckoutFixture(t)
	f.locker.err = errors.New("redis down")

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, "error", f.metrics.last())
}

func TestCheckout_ReleasesLock(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(payment.Charge{}, payment.ErrDeclined)

	_, _ = f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.Empty(t, f.locker.held)
}

func TestCheckout_IdempotencyKeyReplaysOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()
	in := usecase.CheckoutInput{PaymentToken: "tok", IdempotencyKey: "key-1"}

	first, err := f.uc.Checkout(context.Background(), f.me(), in)
	require.NoError(t, err)

	second, err := f.uc.Checkout(context.Background(), f.me(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.Total, second.Order.Total)
	assert.Len(t, second.Order.Items, 2)
	assert.Equal(t, "replayed", f.metrics.last())
	f.gateway.AssertNumberOfCalls(t, "Charge", 1)
}

func TestCheckout_IdempotencyKeyTooLong(t *testing.T) {
	f := newCheckoutFixture(t)
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'k'
	}

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok", IdempotencyKey: string(long)})

	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCheckout_TotalOverflowIsRejectedBeforeCharge(t *testing.T) {
	f := newCheckoutFixture(t)
	it := f.store.addItem(model.Item{Title: "gold", Description: "very expensive", Price: math.MaxInt64 / 2, UserID: 1})
	f.store.addLine(f.user.ID, it.ID, 3)

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.True(t, errors.Is(err, apperr.ErrValidation))
	e, _ := apperr.AsError(err)
	assert.Equal(t, string(usecase.StateCartLoaded), e.State)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	assert.Empty(t, f.store.attemptList())
}

func TestCheckout_EmptyCartIsCharged(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(chargeFor(0))).
		Return(payment.Charge{ID: "pi_0", AmountCharged: 0}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Order.Total)
	assert.Empty(t, res.Order.Items)
}

func TestCheckout_AttemptCreateFailureChargesNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	// 同じIDのattemptが既にあるとCreateが失敗する
	f.store.attempts["attempt-1"] = model.CheckoutAttempt{ID: "attempt-1", UserID: 999, Status: model.CheckoutStatusResolved}

	_, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_OrderItemsAreSnapshots(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart()
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.Charge{ID: "pi_1", AmountCharged: 2000}, nil).Once()

	res, err := f.uc.Checkout(context.Background(), f.me(), usecase.CheckoutInput{PaymentToken: "tok"})
	require.NoError(t, err)

	// 商品を後から変えても注文は変わらない
	for id, it := range f.store.items {
		it.Title = "renamed"
		it.Price = 1
		f.store.items[id] = it
	}

	got, err := usecase.NewOrderUsecase(memOrders{f.store}, memOrderItems{f.store}).
		GetOrder(context.Background(), f.me(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "mug", got.Items[0].Title)
	assert.Equal(t, int64(500), got.Items[0].Price)
}
