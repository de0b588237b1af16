// mock-gateway is an in-memory stand-in for the split-payment provider,
// implementing the linked-account endpoints the api consumes. Useful for
// local development and docker-compose setups.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/marketlane/settlement/internal/logging"
)

type account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

type product struct {
	ID               string `json:"id"`
	ActivationStatus string `json:"activation_status"`
}

type store struct {
	mu           sync.Mutex
	accounts     map[string]*account
	byEmail      map[string]string
	stakeholders map[string]map[string]bool
	products     map[string]*product
}

func newStore() *store {
	return &store{
		accounts:     make(map[string]*account),
		byEmail:      make(map[string]string),
		stakeholders: make(map[string]map[string]bool),
		products:     make(map[string]*product),
	}
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	s := newStore()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/accounts", s.createAccount)
	mux.HandleFunc("GET /v1/accounts/{id}", s.getAccount)
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.deleteAccount)
	mux.HandleFunc("POST /v1/accounts/{id}/stakeholders", s.createStakeholder)
	mux.HandleFunc("POST /v1/accounts/{id}/products", s.createProduct)
	mux.HandleFunc("PATCH /v1/accounts/{id}/products/{pid}", s.updateProduct)
	mux.HandleFunc("POST /v1/accounts/{id}/products/{pid}/activation", s.activate)
	mux.HandleFunc("GET /v1/transfers/{id}", getTransfer)

	addr := ":8081"
	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *store) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name and email are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[req.Email]; taken {
		writeError(w, http.StatusConflict, "already_exists", "an account with this email already exists")
		return
	}

	acct := &account{
		ID:     "acc_" + uuid.New().String()[:12],
		Name:   req.Name,
		Email:  req.Email,
		Status: "created",
	}
	s.accounts[acct.ID] = acct
	s.byEmail[req.Email] = acct.ID
	s.stakeholders[acct.ID] = make(map[string]bool)

	writeJSON(w, http.StatusCreated, acct)
}

func (s *store) getAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *store) deleteAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	acct, ok := s.accounts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	delete(s.accounts, id)
	delete(s.byEmail, acct.Email)
	delete(s.stakeholders, id)

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "deleted": "true"})
}

func (s *store) createStakeholder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	members, ok := s.stakeholders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	if members[req.Email] {
		writeError(w, http.StatusConflict, "already_exists", "stakeholder already registered")
		return
	}
	members[req.Email] = true

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    "sh_" + uuid.New().String()[:12],
		"name":  req.Name,
		"email": req.Email,
	})
}

func (s *store) createProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := s.accounts[id]; !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}

	p := &product{
		ID:               "prd_" + uuid.New().String()[:12],
		ActivationStatus: "requested",
	}
	s.products[p.ID] = p

	writeJSON(w, http.StatusCreated, p)
}

func (s *store) updateProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[r.PathValue("pid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	p.ActivationStatus = "needs_clarification"

	writeJSON(w, http.StatusOK, p)
}

// activate immediately activates both the product and its account, which
// keeps local end-to-end flows simple.
func (s *store) activate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "account not found")
		return
	}
	p, ok := s.products[r.PathValue("pid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}

	p.ActivationStatus = "activated"
	acct.Status = "activated"

	writeJSON(w, http.StatusOK, p)
}

func getTransfer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        r.PathValue("id"),
		"recipient": "acc_mock",
		"amount":    0,
		"status":    "processed",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":        code,
			"description": description,
		},
	})
}
