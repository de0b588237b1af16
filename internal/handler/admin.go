package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/ledger"
	"github.com/marketlane/settlement/internal/logging"
)

type ledgerAdminService interface {
	RecordSale(ctx context.Context, req ledger.RecordSaleRequest) (*domain.Sale, error)
	CreditSale(ctx context.Context, req ledger.CreditSaleRequest) (*ledger.CreditResult, error)
	Refund(ctx context.Context, req ledger.RefundRequest) (int64, error)
	GetPlatformStats(ctx context.Context) (*ledger.PlatformStats, error)
	RunSettlementSweep(ctx context.Context, now time.Time, batch int) (int, error)
}

type feeSettingsStore interface {
	Set(ctx context.Context, key string, percentage decimal.Decimal) error
}

type AdminHandler struct {
	ledger     ledgerAdminService
	fees       feeSettingsStore
	sweepBatch int
}

func NewAdminHandler(l ledgerAdminService, fees feeSettingsStore, sweepBatch int) *AdminHandler {
	return &AdminHandler{ledger: l, fees: fees, sweepBatch: sweepBatch}
}

type recordSaleRequest struct {
	OwnerID          string `json:"owner_id"`
	ServiceType      string `json:"service_type"`
	ReferenceID      string `json:"reference_id"`
	GrossAmount      int64  `json:"gross_amount"`
	CategoryOverride bool   `json:"category_override"`
	GatewayOrderID   string `json:"gateway_order_id"`
}

func (r recordSaleRequest) Validate() []FieldError {
	var errs []FieldError
	if r.OwnerID == "" {
		errs = append(errs, FieldError{Field: "owner_id", Message: "required"})
	} else if _, err := uuid.Parse(r.OwnerID); err != nil {
		errs = append(errs, FieldError{Field: "owner_id", Message: "must be a valid UUID"})
	}
	if !domain.ServiceType(r.ServiceType).IsValid() {
		errs = append(errs, FieldError{Field: "service_type", Message: "must be event or media"})
	}
	if r.ReferenceID == "" {
		errs = append(errs, FieldError{Field: "reference_id", Message: "required"})
	}
	if r.GrossAmount <= 0 {
		errs = append(errs, FieldError{Field: "gross_amount", Message: "must be greater than 0"})
	}
	if r.GatewayOrderID == "" {
		errs = append(errs, FieldError{Field: "gateway_order_id", Message: "required"})
	}
	return errs
}

// RecordSale registers a checkout with the ledger before payment capture.
// The marketplace backend calls this when it creates the gateway order.
func (h *AdminHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req recordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	serviceType := domain.ServiceType(req.ServiceType)

	sale, err := h.ledger.RecordSale(r.Context(), ledger.RecordSaleRequest{
		OwnerID:          ownerID,
		ServiceType:      serviceType,
		ReferenceType:    referenceTypeFor(serviceType),
		ReferenceID:      req.ReferenceID,
		GrossAmount:      req.GrossAmount,
		CategoryOverride: req.CategoryOverride,
		GatewayOrderID:   req.GatewayOrderID,
	})
	if err != nil {
		log.Warn("sale recording failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"sale_id":          sale.ID,
		"gateway_order_id": sale.GatewayOrderID,
		"status":           sale.Status,
	})
}

type creditSaleRequest struct {
	VendorID         string `json:"vendor_id"`
	GrossAmount      int64  `json:"gross_amount"`
	ServiceType      string `json:"service_type"`
	ReferenceID      string `json:"reference_id"`
	CategoryOverride bool   `json:"category_override"`
}

func (r creditSaleRequest) Validate() []FieldError {
	var errs []FieldError
	if r.VendorID == "" {
		errs = append(errs, FieldError{Field: "vendor_id", Message: "required"})
	} else if _, err := uuid.Parse(r.VendorID); err != nil {
		errs = append(errs, FieldError{Field: "vendor_id", Message: "must be a valid UUID"})
	}
	if r.GrossAmount <= 0 {
		errs = append(errs, FieldError{Field: "gross_amount", Message: "must be greater than 0"})
	}
	if !domain.ServiceType(r.ServiceType).IsValid() {
		errs = append(errs, FieldError{Field: "service_type", Message: "must be event or media"})
	}
	if r.ReferenceID == "" {
		errs = append(errs, FieldError{Field: "reference_id", Message: "required"})
	}
	return errs
}

// CreditSale credits a vendor directly, bypassing gateway reconciliation.
// Used for sales settled outside the gateway (cash bookings, corrections).
func (h *AdminHandler) CreditSale(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req creditSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	vendorID, _ := uuid.Parse(req.VendorID)
	serviceType := domain.ServiceType(req.ServiceType)

	res, err := h.ledger.CreditSale(r.Context(), ledger.CreditSaleRequest{
		VendorID:         vendorID,
		GrossAmount:      req.GrossAmount,
		ServiceType:      serviceType,
		ReferenceType:    referenceTypeFor(serviceType),
		ReferenceID:      req.ReferenceID,
		CategoryOverride: req.CategoryOverride,
	})
	if err != nil {
		log.Warn("manual sale credit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	RespondSuccess(w, status, map[string]any{
		"vendor_net":   res.VendorNet,
		"platform_fee": res.PlatformFee,
		"duplicate":    res.Duplicate,
	})
}

type refundRequest struct {
	VendorID    string `json:"vendor_id"`
	GrossAmount int64  `json:"gross_amount"`
	ServiceType string `json:"service_type"`
	ReferenceID string `json:"reference_id"`
}

func (r refundRequest) Validate() []FieldError {
	var errs []FieldError
	if r.VendorID == "" {
		errs = append(errs, FieldError{Field: "vendor_id", Message: "required"})
	} else if _, err := uuid.Parse(r.VendorID); err != nil {
		errs = append(errs, FieldError{Field: "vendor_id", Message: "must be a valid UUID"})
	}
	if r.GrossAmount <= 0 {
		errs = append(errs, FieldError{Field: "gross_amount", Message: "must be greater than 0"})
	}
	if !domain.ServiceType(r.ServiceType).IsValid() {
		errs = append(errs, FieldError{Field: "service_type", Message: "must be event or media"})
	}
	if r.ReferenceID == "" {
		errs = append(errs, FieldError{Field: "reference_id", Message: "required"})
	}
	return errs
}

func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	vendorID, _ := uuid.Parse(req.VendorID)

	debited, err := h.ledger.Refund(r.Context(), ledger.RefundRequest{
		VendorID:    vendorID,
		GrossAmount: req.GrossAmount,
		ServiceType: domain.ServiceType(req.ServiceType),
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		log.Warn("refund failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"vendor_debited": debited,
	})
}

func (h *AdminHandler) PlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetPlatformStats(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"total_platform_earnings": stats.TotalEarnings,
		"earnings_today":          stats.EarningsToday,
		"earnings_this_month":     stats.EarningsThisMonth,
		"fees_by_service":         stats.FeesByService,
		"pending_withdrawals":     stats.PendingWithdrawals,
		"vendor_count":            stats.VendorCount,
	})
}

// RunSweep triggers a settlement sweep outside the schedule.
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.ledger.RunSettlementSweep(r.Context(), time.Now().UTC(), h.sweepBatch)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"promoted": promoted})
}

type updateFeeSettingRequest struct {
	Percentage string `json:"percentage"`
}

// UpdateFeeSetting changes a configured fee percentage. The new rate applies
// to future sales only; stored transactions keep the fee they were booked
// with.
func (h *AdminHandler) UpdateFeeSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key != domain.FeeSettingKeyEvent && key != domain.FeeSettingKeyMedia {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req updateFeeSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	pct, err := decimal.NewFromString(req.Percentage)
	if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		RespondValidationError(w, []FieldError{{Field: "percentage", Message: "must be a decimal between 0 and 100"}})
		return
	}

	if err := h.fees.Set(r.Context(), key, pct); err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"key":        key,
		"percentage": pct.String(),
	})
}

func referenceTypeFor(serviceType domain.ServiceType) domain.ReferenceType {
	if serviceType == domain.ServiceTypeMedia {
		return domain.ReferenceTypePurchase
	}
	return domain.ReferenceTypeBooking
}
