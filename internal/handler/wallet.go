package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/marketlane/settlement/internal/auth"
	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/logging"
	"github.com/marketlane/settlement/internal/provisioning"
	"github.com/marketlane/settlement/internal/repository"
)

type walletService interface {
	GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetWalletStats(ctx context.Context, ownerID uuid.UUID) (*ledger.WalletStats, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, f repository.ListFilter, limit, offset int) ([]domain.Transaction, int, error)
}

type bankDetailsStore interface {
	UpdateBankDetails(ctx context.Context, id uuid.UUID, b domain.BankDetails) error
}

type provisioner interface {
	Provision(ctx context.Context, ownerID uuid.UUID, profile provisioning.Profile) (*domain.Wallet, error)
	SyncAccountStatus(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
}

type WalletHandler struct {
	wallets      walletService
	bankDetails  bankDetailsStore
	provisioning provisioner
}

func NewWalletHandler(wallets walletService, bankDetails bankDetailsStore, prov provisioner) *WalletHandler {
	return &WalletHandler{wallets: wallets, bankDetails: bankDetails, provisioning: prov}
}

type walletDTO struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	Balance         int64     `json:"balance"`
	PendingBalance  int64     `json:"pending_balance"`
	TotalEarnings   int64     `json:"total_earnings"`
	TotalWithdrawn  int64     `json:"total_withdrawn"`
	BankName        *string   `json:"bank_name,omitempty"`
	AccountName     *string   `json:"account_name,omitempty"`
	AccountNumber   *string   `json:"account_number,omitempty"`
	IFSC            *string   `json:"ifsc,omitempty"`
	LinkedAccountID *string   `json:"linked_account_id,omitempty"`
	AccountStatus   string    `json:"account_status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toWalletDTO(w *domain.Wallet) walletDTO {
	return walletDTO{
		ID:              w.ID,
		OwnerID:         w.OwnerID,
		Balance:         w.Balance,
		PendingBalance:  w.PendingBalance,
		TotalEarnings:   w.TotalEarnings,
		TotalWithdrawn:  w.TotalWithdrawn,
		BankName:        w.BankName,
		AccountName:     w.AccountName,
		AccountNumber:   maskAccountNumber(w.AccountNumber),
		IFSC:            w.IFSC,
		LinkedAccountID: w.LinkedAccountID,
		AccountStatus:   string(w.AccountStatus),
		CreatedAt:       w.CreatedAt,
	}
}

func maskAccountNumber(n *string) *string {
	if n == nil {
		return nil
	}
	s := *n
	if len(s) > 4 {
		s = "****" + s[len(s)-4:]
	}
	return &s
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	PlatformFee   int64      `json:"platform_fee"`
	NetAmount     int64      `json:"net_amount"`
	Status        string     `json:"status"`
	ServiceType   string     `json:"service_type,omitempty"`
	ReferenceType string     `json:"reference_type"`
	ReferenceID   string     `json:"reference_id"`
	AvailableAt   *time.Time `json:"available_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionDTO(t domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		PlatformFee:   t.PlatformFee,
		NetAmount:     t.NetAmount,
		Status:        string(t.Status),
		ServiceType:   string(t.ServiceType),
		ReferenceType: string(t.ReferenceType),
		ReferenceID:   t.ReferenceID,
		AvailableAt:   t.AvailableAt,
		CreatedAt:     t.CreatedAt,
	}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	wallet, err := h.wallets.GetWallet(r.Context(), ownerID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWalletDTO(wallet))
}

func (h *WalletHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	stats, err := h.wallets.GetWalletStats(r.Context(), ownerID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	recent := make([]transactionDTO, 0, len(stats.RecentTransactions))
	for _, t := range stats.RecentTransactions {
		recent = append(recent, toTransactionDTO(t))
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"wallet":              toWalletDTO(stats.Wallet),
		"earnings_today":      stats.EarningsToday,
		"earnings_this_month": stats.EarningsThisMonth,
		"earnings_by_service": stats.EarningsByService,
		"recent_transactions": recent,
		"pending_withdrawals": stats.PendingWithdrawals,
	})
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	q := r.URL.Query()
	filter := repository.ListFilter{
		Type:        domain.TransactionType(q.Get("type")),
		ServiceType: domain.ServiceType(q.Get("service_type")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "from", Message: "must be RFC3339"}})
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "to", Message: "must be RFC3339"}})
			return
		}
		filter.To = t
	}

	limit := parseIntParam(q.Get("limit"), 20)
	offset := parseIntParam(q.Get("offset"), 0)

	txns, total, err := h.wallets.ListTransactions(r.Context(), ownerID, filter, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]transactionDTO, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionDTO(t))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"transactions": out,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type updateBankDetailsRequest struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name"`
	VendorName    string `json:"vendor_name"`
	VendorEmail   string `json:"vendor_email"`
	VendorContact string `json:"vendor_contact"`
}

func (r updateBankDetailsRequest) Validate() []FieldError {
	var errs []FieldError
	if r.AccountName == "" {
		errs = append(errs, FieldError{Field: "account_name", Message: "required"})
	}
	if r.AccountNumber == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}
	if r.IFSC == "" {
		errs = append(errs, FieldError{Field: "ifsc", Message: "required"})
	}
	if r.VendorName == "" {
		errs = append(errs, FieldError{Field: "vendor_name", Message: "required"})
	}
	if r.VendorEmail == "" {
		errs = append(errs, FieldError{Field: "vendor_email", Message: "required"})
	}
	return errs
}

// UpdateBankDetails saves the vendor's settlement account and kicks off
// split-payment provisioning. Provisioning failures do not fail the save;
// the account status on the returned wallet tells the caller where things
// stand.
func (h *WalletHandler) UpdateBankDetails(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req updateBankDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wallet, err := h.wallets.GetWallet(r.Context(), ownerID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if err := h.bankDetails.UpdateBankDetails(r.Context(), wallet.ID, domain.BankDetails{
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		IFSC:          req.IFSC,
		BankName:      req.BankName,
	}); err != nil {
		RespondDomainError(w, err)
		return
	}

	updated, err := h.provisioning.Provision(r.Context(), ownerID, provisioning.Profile{
		Name:    req.VendorName,
		Email:   req.VendorEmail,
		Contact: req.VendorContact,
	})
	if err != nil {
		log.Warn("provisioning after bank details update failed", "owner_id", ownerID, "error", err)
		updated, err = h.wallets.GetWallet(r.Context(), ownerID)
		if err != nil {
			RespondDomainError(w, err)
			return
		}
	}

	RespondSuccess(w, http.StatusOK, toWalletDTO(updated))
}

// SyncAccountStatus refreshes the split-payment account status from the
// gateway on demand.
func (h *WalletHandler) SyncAccountStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	wallet, err := h.provisioning.SyncAccountStatus(r.Context(), ownerID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWalletDTO(wallet))
}

func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
