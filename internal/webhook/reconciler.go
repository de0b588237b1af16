// Package webhook turns gateway payment events into ledger operations.
// Reconciliation is synchronous and idempotent: the sale status transition
// and the transaction reference uniqueness together make replayed events
// harmless.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/logging"
)

const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventTransferProcessed = "transfer.processed"
)

// Event is the envelope the gateway posts. Payload shape depends on Type.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type paymentPayload struct {
	OrderID    string  `json:"order_id"`
	PaymentID  string  `json:"payment_id"`
	TransferID *string `json:"transfer_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type transferPayload struct {
	OrderID    string `json:"order_id"`
	TransferID string `json:"transfer_id"`
}

type ledgerService interface {
	GetSaleByGatewayOrder(ctx context.Context, orderID string) (*domain.Sale, error)
	CompleteSale(ctx context.Context, sale *domain.Sale, gatewayPaymentID string, transferID *string) (*ledger.CreditResult, error)
	FailSale(ctx context.Context, sale *domain.Sale) error
	RecordSaleTransfer(ctx context.Context, sale *domain.Sale, transferID string) error
}

type Reconciler struct {
	ledger ledgerService
}

func NewReconciler(l ledgerService) *Reconciler {
	return &Reconciler{ledger: l}
}

// Handle dispatches one verified event. Unknown event types are logged and
// acknowledged so the gateway does not retry them forever.
func (r *Reconciler) Handle(ctx context.Context, raw []byte) error {
	log := logging.FromContext(ctx)

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("Handle: decode event: %w", domain.ErrInvalidRequest)
	}

	switch ev.Type {
	case EventPaymentCaptured:
		return r.handlePaymentCaptured(ctx, ev.Payload)
	case EventPaymentFailed:
		return r.handlePaymentFailed(ctx, ev.Payload)
	case EventTransferProcessed:
		return r.handleTransferProcessed(ctx, ev.Payload)
	default:
		log.Info("ignoring unhandled webhook event", "event", ev.Type)
		return nil
	}
}

func (r *Reconciler) handlePaymentCaptured(ctx context.Context, raw json.RawMessage) error {
	log := logging.FromContext(ctx)

	var p paymentPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.OrderID == "" {
		return fmt.Errorf("handlePaymentCaptured: %w", domain.ErrInvalidRequest)
	}

	sale, err := r.ledger.GetSaleByGatewayOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("captured payment references unknown order", "order_id", p.OrderID)
			return nil
		}
		return fmt.Errorf("handlePaymentCaptured: %w", err)
	}

	res, err := r.ledger.CompleteSale(ctx, sale, p.PaymentID, p.TransferID)
	if err != nil {
		return fmt.Errorf("handlePaymentCaptured: %w", err)
	}
	if res.Duplicate {
		log.Info("payment.captured replay ignored", "order_id", p.OrderID)
		return nil
	}

	log.Info("payment captured and credited",
		"order_id", p.OrderID,
		"sale_id", sale.ID,
		"vendor_net", res.VendorNet,
		"platform_fee", res.PlatformFee,
	)
	return nil
}

func (r *Reconciler) handlePaymentFailed(ctx context.Context, raw json.RawMessage) error {
	log := logging.FromContext(ctx)

	var p paymentPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.OrderID == "" {
		return fmt.Errorf("handlePaymentFailed: %w", domain.ErrInvalidRequest)
	}

	sale, err := r.ledger.GetSaleByGatewayOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("failed payment references unknown order", "order_id", p.OrderID)
			return nil
		}
		return fmt.Errorf("handlePaymentFailed: %w", err)
	}

	if err := r.ledger.FailSale(ctx, sale); err != nil {
		return fmt.Errorf("handlePaymentFailed: %w", err)
	}
	log.Info("payment failed", "order_id", p.OrderID, "sale_id", sale.ID, "reason", p.Reason)
	return nil
}

func (r *Reconciler) handleTransferProcessed(ctx context.Context, raw json.RawMessage) error {
	log := logging.FromContext(ctx)

	var p transferPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.OrderID == "" || p.TransferID == "" {
		return fmt.Errorf("handleTransferProcessed: %w", domain.ErrInvalidRequest)
	}

	sale, err := r.ledger.GetSaleByGatewayOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("transfer references unknown order", "order_id", p.OrderID)
			return nil
		}
		return fmt.Errorf("handleTransferProcessed: %w", err)
	}

	if err := r.ledger.RecordSaleTransfer(ctx, sale, p.TransferID); err != nil {
		return fmt.Errorf("handleTransferProcessed: %w", err)
	}
	log.Info("transfer recorded", "order_id", p.OrderID, "transfer_id", p.TransferID)
	return nil
}
