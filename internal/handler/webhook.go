package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/webhook"
)

const signatureHeader = "X-Gateway-Signature"

// 1 MiB is far beyond any event the gateway sends.
const maxWebhookBody = 1 << 20

type webhookReconciler interface {
	Handle(ctx context.Context, raw []byte) error
}

type WebhookHandler struct {
	reconciler webhookReconciler
	secret     string
}

func NewWebhookHandler(reconciler webhookReconciler, secret string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret}
}

// Receive verifies the gateway signature and reconciles the event
// synchronously. A non-2xx response makes the gateway redeliver, so only
// genuine processing failures return errors; unknown orders and replays are
// acknowledged.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	signature := r.Header.Get(signatureHeader)
	if err := webhook.VerifySignature(body, signature, h.secret); err != nil {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	if err := h.reconciler.Handle(r.Context(), body); err != nil {
		log.Error("webhook reconciliation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "processed"})
}
