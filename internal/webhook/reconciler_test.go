package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/webhook"
)

type stubLedger struct {
	sales map[string]*domain.Sale

	completedWith string
	completeRes   *ledger.CreditResult
	completeErr   error
	failedSale    *domain.Sale
	transferID    string
}

func (s *stubLedger) GetSaleByGatewayOrder(_ context.Context, orderID string) (*domain.Sale, error) {
	sale, ok := s.sales[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sale, nil
}

func (s *stubLedger) CompleteSale(_ context.Context, sale *domain.Sale, paymentID string, _ *string) (*ledger.CreditResult, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	s.completedWith = paymentID
	if s.completeRes != nil {
		return s.completeRes, nil
	}
	return &ledger.CreditResult{VendorNet: sale.GrossAmount, PlatformFee: 0}, nil
}

func (s *stubLedger) FailSale(_ context.Context, sale *domain.Sale) error {
	s.failedSale = sale
	return nil
}

func (s *stubLedger) RecordSaleTransfer(_ context.Context, _ *domain.Sale, transferID string) error {
	s.transferID = transferID
	return nil
}

func TestHandle_PaymentCaptured(t *testing.T) {
	sale := &domain.Sale{GrossAmount: 1000, Status: domain.SaleStatusPending}
	lgr := &stubLedger{sales: map[string]*domain.Sale{"order_1": sale}}
	r := webhook.NewReconciler(lgr)

	err := r.Handle(context.Background(), []byte(`{
		"event": "payment.captured",
		"payload": {"order_id": "order_1", "payment_id": "pay_9"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "pay_9", lgr.completedWith)
}

func TestHandle_PaymentCapturedReplayIsAcked(t *testing.T) {
	sale := &domain.Sale{GrossAmount: 1000, Status: domain.SaleStatusCompleted}
	lgr := &stubLedger{
		sales:       map[string]*domain.Sale{"order_1": sale},
		completeRes: &ledger.CreditResult{Duplicate: true},
	}
	r := webhook.NewReconciler(lgr)

	err := r.Handle(context.Background(), []byte(`{
		"event": "payment.captured",
		"payload": {"order_id": "order_1", "payment_id": "pay_9"}
	}`))
	assert.NoError(t, err)
}

func TestHandle_UnknownOrderIsAcked(t *testing.T) {
	lgr := &stubLedger{sales: map[string]*domain.Sale{}}
	r := webhook.NewReconciler(lgr)

	err := r.Handle(context.Background(), []byte(`{
		"event": "payment.captured",
		"payload": {"order_id": "order_missing", "payment_id": "pay_9"}
	}`))
	assert.NoError(t, err, "unknown orders are acknowledged, not retried")
	assert.Empty(t, lgr.completedWith)
}

func TestHandle_PaymentFailed(t *testing.T) {
	sale := &domain.Sale{GrossAmount: 1000, Status: domain.SaleStatusPending}
	lgr := &stubLedger{sales: map[string]*domain.Sale{"order_1": sale}}
	r := webhook.NewReconciler(lgr)

	err := r.Handle(context.Background(), []byte(`{
		"event": "payment.failed",
		"payload": {"order_id": "order_1", "payment_id": "pay_9", "reason": "card_declined"}
	}`))
	require.NoError(t, err)
	assert.Same(t, sale, lgr.failedSale)
}

func TestHandle_TransferProcessed(t *testing.T) {
	sale := &domain.Sale{GrossAmount: 1000, Status: domain.SaleStatusCompleted}
	lgr := &stubLedger{sales: map[string]*domain.Sale{"order_1": sale}}
	r := webhook.NewReconciler(lgr)

	err := r.Handle(context.Background(), []byte(`{
		"event": "transfer.processed",
		"payload": {"order_id": "order_1", "transfer_id": "trf_4"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "trf_4", lgr.transferID)
}

func TestHandle_UnknownEventIsAcked(t *testing.T) {
	r := webhook.NewReconciler(&stubLedger{})

	err := r.Handle(context.Background(), []byte(`{"event": "refund.speed_changed", "payload": {}}`))
	assert.NoError(t, err)
}

func TestHandle_MalformedPayloads(t *testing.T) {
	r := webhook.NewReconciler(&stubLedger{sales: map[string]*domain.Sale{}})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"captured without order id", `{"event": "payment.captured", "payload": {"payment_id": "pay_9"}}`},
		{"failed without order id", `{"event": "payment.failed", "payload": {}}`},
		{"transfer without transfer id", `{"event": "transfer.processed", "payload": {"order_id": "order_1"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Handle(context.Background(), []byte(tc.body))
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}
