package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/webhook"
)

const testWebhookSecret = "test-secret-key"

type mockReconciler struct {
	handled []byte
	err     error
}

func (m *mockReconciler) Handle(_ context.Context, raw []byte) error {
	m.handled = raw
	return m.err
}

func validEventBody() string {
	return `{"event":"payment.captured","payload":{"order_id":"order_1","payment_id":"pay_1"}}`
}

func TestReceiveGatewayWebhook(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		setupSig      func(body string) string
		reconcilerErr error
		wantStatus    int
		wantCode      string
	}{
		{
			name:       "valid signed event",
			body:       validEventBody(),
			setupSig:   func(body string) string { return webhook.Sign([]byte(body), testWebhookSecret) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing signature header",
			body:       validEventBody(),
			setupSig:   nil,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "invalid signature",
			body:       validEventBody(),
			setupSig:   func(_ string) string { return "deadbeefdeadbeef" },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:          "malformed event",
			body:          "not-json",
			setupSig:      func(body string) string { return webhook.Sign([]byte(body), testWebhookSecret) },
			reconcilerErr: fmt.Errorf("decode event: %w", domain.ErrInvalidRequest),
			wantStatus:    http.StatusBadRequest,
			wantCode:      "INVALID_REQUEST",
		},
		{
			name:          "reconciliation failure returns 500",
			body:          validEventBody(),
			setupSig:      func(body string) string { return webhook.Sign([]byte(body), testWebhookSecret) },
			reconcilerErr: fmt.Errorf("connection refused"),
			wantStatus:    http.StatusInternalServerError,
			wantCode:      "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &mockReconciler{err: tc.reconcilerErr}
			h := NewWebhookHandler(rec, testWebhookSecret)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(tc.body))
			if tc.setupSig != nil {
				req.Header.Set(signatureHeader, tc.setupSig(tc.body))
			}
			rr := httptest.NewRecorder()

			h.Receive(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestReceiveGatewayWebhook_PassesRawBody(t *testing.T) {
	rec := &mockReconciler{}
	h := NewWebhookHandler(rec, testWebhookSecret)

	body := validEventBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(signatureHeader, webhook.Sign([]byte(body), testWebhookSecret))
	rr := httptest.NewRecorder()

	h.Receive(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []byte(body), rec.handled)
}
