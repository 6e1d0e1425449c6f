package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/payment"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
)

// StripeGateway はPaymentIntentをサーバー側でconfirmして課金する。
type StripeGateway struct {
	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	newRefund func(*stripe.RefundParams) (*stripe.Refund, error)
}

// DI
// stripe.Key はmainで設定する。
func NewStripeGateway() *StripeGateway {
	return &StripeGateway{
		newIntent: paymentintent.New,
		newRefund: refund.New,
	}
}

func (g *StripeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	// 送る前に期限切れなら何も起きていない
	if err := ctx.Err(); err != nil {
		return payment.Charge{}, fmt.Errorf("%w: %w", payment.ErrDeclined, err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.newIntent(params)
	if err != nil {
		return payment.Charge{}, classifyStripeError(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.Charge{ID: pi.ID, AmountCharged: pi.AmountReceived}, nil
	case stripe.PaymentIntentStatusProcessing:
		// まだ確定していない。後で照合する
		return payment.Charge{}, fmt.Errorf("%w: payment intent %s is processing", payment.ErrAmbiguous, pi.ID)
	default:
		// requires_action（3Dセキュア）はサーバーだけでは完了できない
		return payment.Charge{}, fmt.Errorf("%w: payment intent %s is %s", payment.ErrDeclined, pi.ID, pi.Status)
	}
}

func (g *StripeGateway) Refund(ctx context.Context, chargeID string, amount int64, idempotencyKey string) (payment.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeID),
		Reason:        stripe.String("requested_by_customer"),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	r, err := g.newRefund(params)
	if err != nil {
		return payment.Refund{}, fmt.Errorf("stripe refund: %w", err)
	}
	return payment.Refund{ID: r.ID, Amount: r.Amount}, nil
}

// stripeのエラーを「拒否」か「不明」に分ける。
// 4xxはstripeが処理しなかったので拒否。5xxと通信エラーは不明。
func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch se.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
			return fmt.Errorf("%w: %w", payment.ErrDeclined, err)
		}
		if se.HTTPStatusCode >= http.StatusBadRequest && se.HTTPStatusCode < http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", payment.ErrDeclined, err)
		}
		return fmt.Errorf("%w: %w", payment.ErrAmbiguous, err)
	}
	return fmt.Errorf("%w: %w", payment.ErrAmbiguous, err)
}
