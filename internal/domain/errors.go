package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBelowMinimumAmount   = errors.New("amount below minimum withdrawal")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidServiceType   = errors.New("invalid service type")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrBankDetailsMissing   = errors.New("bank details incomplete")
	ErrWithdrawalExists     = errors.New("a withdrawal request is already in progress")
	ErrWithdrawalTerminal   = errors.New("withdrawal already in terminal state")
	ErrAutoSettlementActive = errors.New("automatic settlement is active for this wallet; manual withdrawal not required")
	ErrDuplicateReference   = errors.New("transaction already recorded for this reference")
	ErrSaleProcessed        = errors.New("sale already processed")
	ErrVersionConflict      = errors.New("optimistic lock conflict")
	ErrProvisioningInFlight = errors.New("provisioning already in progress for this wallet")
	ErrGatewayUnavailable   = errors.New("payment gateway request failed")
	ErrInvalidSignature     = errors.New("webhook signature invalid")
)
