// Package gateway is the HTTP client for the split-payment provider's
// linked-account (route) API: sub-account provisioning, payout product
// configuration and transfer lookups. The ledger core only consumes the
// outcomes of these calls and persists partial progress regardless of
// individual failures.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marketlane/settlement/internal/logging"
)

type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// APIError is a structured rejection from the gateway (4xx with a parsed
// body). Transport failures and 5xx responses are returned as plain errors.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s (%s, http %d)", e.Description, e.Code, e.StatusCode)
}

// IsConflict reports whether err is the gateway telling us the resource
// already exists, which provisioning treats as success on retry.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusConflict || apiErr.Code == "already_exists")
}

type LinkedAccount struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type CreateLinkedAccountRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
}

type Stakeholder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type StakeholderRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ProductConfig struct {
	ID               string `json:"id"`
	ActivationStatus string `json:"activation_status"`
}

type ProductConfigUpdate struct {
	AccountName   string `json:"settlement_account_name"`
	AccountNumber string `json:"settlement_account_number"`
	IFSC          string `json:"settlement_ifsc"`
	TNCAccepted   bool   `json:"tnc_accepted"`
}

type Transfer struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
}

func (c *Client) CreateLinkedAccount(ctx context.Context, req CreateLinkedAccountRequest) (*LinkedAccount, error) {
	var acct LinkedAccount
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", req, &acct); err != nil {
		return nil, fmt.Errorf("CreateLinkedAccount: %w", err)
	}
	return &acct, nil
}

func (c *Client) FetchLinkedAccount(ctx context.Context, accountID string) (*LinkedAccount, error) {
	var acct LinkedAccount
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, &acct); err != nil {
		return nil, fmt.Errorf("FetchLinkedAccount: %w", err)
	}
	return &acct, nil
}

func (c *Client) DeleteLinkedAccount(ctx context.Context, accountID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/accounts/"+accountID, nil, nil); err != nil {
		return fmt.Errorf("DeleteLinkedAccount: %w", err)
	}
	return nil
}

func (c *Client) CreateStakeholder(ctx context.Context, accountID string, req StakeholderRequest) (*Stakeholder, error) {
	var sh Stakeholder
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID+"/stakeholders", req, &sh); err != nil {
		return nil, fmt.Errorf("CreateStakeholder: %w", err)
	}
	return &sh, nil
}

func (c *Client) RequestProductConfig(ctx context.Context, accountID string) (*ProductConfig, error) {
	body := map[string]string{"product_name": "route", "tnc_accepted": "true"}
	var pc ProductConfig
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID+"/products", body, &pc); err != nil {
		return nil, fmt.Errorf("RequestProductConfig: %w", err)
	}
	return &pc, nil
}

func (c *Client) UpdateProductConfig(ctx context.Context, accountID, productID string, req ProductConfigUpdate) (*ProductConfig, error) {
	var pc ProductConfig
	if err := c.do(ctx, http.MethodPatch, "/v1/accounts/"+accountID+"/products/"+productID, req, &pc); err != nil {
		return nil, fmt.Errorf("UpdateProductConfig: %w", err)
	}
	return &pc, nil
}

func (c *Client) SubmitActivation(ctx context.Context, accountID, productID string) (*ProductConfig, error) {
	body := map[string]bool{"submit": true}
	var pc ProductConfig
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID+"/products/"+productID+"/activation", body, &pc); err != nil {
		return nil, fmt.Errorf("SubmitActivation: %w", err)
	}
	return &pc, nil
}

func (c *Client) FetchTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	var t Transfer
	if err := c.do(ctx, http.MethodGet, "/v1/transfers/"+transferID, nil, &t); err != nil {
		return nil, fmt.Errorf("FetchTransfer: %w", err)
	}
	return &t, nil
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("do: marshal: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("do: build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := logging.FromContext(ctx)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("gateway response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("do: read body: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Code != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: eb.Error.Code, Description: eb.Error.Description}
		}
		return &APIError{StatusCode: resp.StatusCode, Code: "unknown", Description: string(raw)}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("do: gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	if target != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("do: decode response: %w", err)
		}
	}
	return nil
}
