package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/marketlane/settlement/internal/auth"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/logging"
)

type payoutService interface {
	Request(ctx context.Context, ownerID uuid.UUID, amount int64) (*domain.WithdrawalRequest, error)
	Process(ctx context.Context, withdrawalID uuid.UUID, status domain.WithdrawalStatus, transferID, adminNote, failureReason *string) (*domain.WithdrawalRequest, error)
	Cancel(ctx context.Context, ownerID, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error)
	Get(ctx context.Context, ownerID, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error)
}

type WithdrawalHandler struct {
	payouts payoutService
}

func NewWithdrawalHandler(payouts payoutService) *WithdrawalHandler {
	return &WithdrawalHandler{payouts: payouts}
}

type withdrawalDTO struct {
	ID            uuid.UUID  `json:"id"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	BankName      string     `json:"bank_name"`
	AccountName   string     `json:"account_name"`
	TransferID    *string    `json:"transfer_id,omitempty"`
	AdminNote     *string    `json:"admin_note,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

func toWithdrawalDTO(wr *domain.WithdrawalRequest) withdrawalDTO {
	return withdrawalDTO{
		ID:            wr.ID,
		Amount:        wr.Amount,
		Status:        string(wr.Status),
		BankName:      wr.BankName,
		AccountName:   wr.AccountName,
		TransferID:    wr.TransferID,
		AdminNote:     wr.AdminNote,
		FailureReason: wr.FailureReason,
		CreatedAt:     wr.CreatedAt,
		ProcessedAt:   wr.ProcessedAt,
	}
}

type createWithdrawalRequest struct {
	Amount int64 `json:"amount"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Amount <= 0 {
		RespondValidationError(w, []FieldError{{Field: "amount", Message: "must be greater than 0"}})
		return
	}

	wr, err := h.payouts.Request(r.Context(), ownerID, req.Amount)
	if err != nil {
		log.Warn("withdrawal request failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/withdrawals/%s", wr.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	wr, err := h.payouts.Get(r.Context(), ownerID, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), 20)
	offset := parseIntParam(q.Get("offset"), 0)

	items, total, err := h.payouts.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]withdrawalDTO, 0, len(items))
	for i := range items {
		out = append(out, toWithdrawalDTO(&items[i]))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"withdrawals": out,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	wr, err := h.payouts.Cancel(r.Context(), ownerID, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

type processWithdrawalRequest struct {
	Status        string  `json:"status"`
	TransferID    *string `json:"transfer_id"`
	AdminNote     *string `json:"admin_note"`
	FailureReason *string `json:"failure_reason"`
}

func (r processWithdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	switch domain.WithdrawalStatus(r.Status) {
	case domain.WithdrawalStatusProcessing, domain.WithdrawalStatusCompleted, domain.WithdrawalStatusFailed:
	default:
		errs = append(errs, FieldError{Field: "status", Message: "must be processing, completed, or failed"})
	}
	if domain.WithdrawalStatus(r.Status) == domain.WithdrawalStatusFailed && r.FailureReason == nil {
		errs = append(errs, FieldError{Field: "failure_reason", Message: "required when status is failed"})
	}
	return errs
}

// Process is the admin endpoint that moves a withdrawal through its
// lifecycle.
func (h *WithdrawalHandler) Process(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req processWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := h.payouts.Process(r.Context(), id, domain.WithdrawalStatus(req.Status), req.TransferID, req.AdminNote, req.FailureReason)
	if err != nil {
		log.Warn("withdrawal processing failed", "withdrawal_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}
