package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Insufficient permissions"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientBalance   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Insufficient withdrawable balance"}
	ErrBelowMinimumAmount    = &AppError{http.StatusUnprocessableEntity, "BELOW_MINIMUM_AMOUNT", "Amount is below the minimum withdrawal"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidServiceType    = &AppError{http.StatusBadRequest, "INVALID_SERVICE_TYPE", "Service type must be event or media"}
	ErrBankDetailsMissing    = &AppError{http.StatusUnprocessableEntity, "BANK_DETAILS_MISSING", "Bank details are incomplete"}
	ErrWithdrawalExists      = &AppError{http.StatusConflict, "WITHDRAWAL_IN_PROGRESS", "A withdrawal request is already in progress"}
	ErrWithdrawalTerminal    = &AppError{http.StatusConflict, "WITHDRAWAL_FINALIZED", "Withdrawal has already been finalized"}
	ErrAutoSettlementActive  = &AppError{http.StatusUnprocessableEntity, "AUTO_SETTLEMENT_ACTIVE", "Automatic settlement is active; manual withdrawal not required"}
	ErrDuplicateReference    = &AppError{http.StatusConflict, "DUPLICATE_REFERENCE", "Transaction already recorded for this reference"}
	ErrSaleProcessed         = &AppError{http.StatusConflict, "SALE_ALREADY_PROCESSED", "Sale has already been processed"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrProvisioningInFlight  = &AppError{http.StatusConflict, "PROVISIONING_IN_PROGRESS", "Account provisioning is already in progress"}
	ErrGatewayUnavailable    = &AppError{http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway request failed"}
	ErrInvalidSignature      = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature invalid"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
