package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"custodia/native/escrow"
	"custodia/native/registry"
	"custodia/native/reputation"
)

type errorPayload struct {
	Error string `json:"error"`
}

type configPayload struct {
	Admin          string `json:"admin"`
	FeeBasisPoints uint16 `json:"feeBasisPoints"`
	FeeVault       string `json:"feeVault"`
	CreatedAt      int64  `json:"createdAt"`
}

type arbiterPayload struct {
	Arbiter string `json:"arbiter"`
	AddedBy string `json:"addedBy"`
	AddedAt int64  `json:"addedAt"`
	Active  bool   `json:"active"`
}

type escrowPayload struct {
	ID        string `json:"id"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	DisputeBy int64  `json:"disputeBy"`
	TimeoutAt int64  `json:"timeoutAt"`
}

type reputationPayload struct {
	User             string  `json:"user"`
	SuccessfulTrades uint64  `json:"successfulTrades"`
	FailedTrades     uint64  `json:"failedTrades"`
	TotalTrades      uint64  `json:"totalTrades"`
	SuccessRate      float64 `json:"successRate"`
}

func renderConfig(cfg *registry.Config) configPayload {
	return configPayload{
		Admin:          hex.EncodeToString(cfg.Admin[:]),
		FeeBasisPoints: cfg.FeeBasisPoints,
		FeeVault:       hex.EncodeToString(cfg.FeeVault[:]),
		CreatedAt:      cfg.CreatedAt,
	}
}

func renderArbiter(a *registry.Arbiter) arbiterPayload {
	return arbiterPayload{
		Arbiter: hex.EncodeToString(a.Arbiter[:]),
		AddedBy: hex.EncodeToString(a.AddedBy[:]),
		AddedAt: a.AddedAt,
		Active:  a.Active,
	}
}

func renderEscrow(e *escrow.Escrow) escrowPayload {
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}
	return escrowPayload{
		ID:        hex.EncodeToString(e.ID[:]),
		Buyer:     hex.EncodeToString(e.Buyer[:]),
		Seller:    hex.EncodeToString(e.Seller[:]),
		Amount:    amount,
		Status:    e.Status.String(),
		CreatedAt: e.CreatedAt,
		DisputeBy: e.DisputeBy,
		TimeoutAt: e.TimeoutAt,
	}
}

func renderReputation(rec *reputation.Reputation) reputationPayload {
	return reputationPayload{
		User:             hex.EncodeToString(rec.User[:]),
		SuccessfulTrades: rec.SuccessfulTrades,
		FailedTrades:     rec.FailedTrades,
		TotalTrades:      rec.TotalTrades(),
		SuccessRate:      rec.SuccessRate(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

// writeEngineError maps domain sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound),
		errors.Is(err, registry.ErrArbiterNotFound),
		errors.Is(err, reputation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, escrow.ErrUnauthorizedArbiter),
		errors.Is(err, registry.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrEscrowExists),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrAlreadyFinalized),
		errors.Is(err, registry.ErrAlreadyInitialized),
		errors.Is(err, registry.ErrNotInitialized):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidParties),
		errors.Is(err, escrow.ErrInvalidResolution),
		errors.Is(err, escrow.ErrOverflow),
		errors.Is(err, registry.ErrFeeTooHigh),
		errors.Is(err, registry.ErrInvalidFeeCollector),
		errors.Is(err, registry.ErrInvalidArbiter),
		errors.Is(err, reputation.ErrInvalidUser):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseEscrowID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(id) {
		return id, fmt.Errorf("invalid escrow id %q", raw)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func (s *Server) handleInitializeConfig(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req struct {
		FeeBasisPoints uint16 `json:"feeBasisPoints"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	cfg, err := s.node.InitializeConfig(principal.Address, req.FeeBasisPoints)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderConfig(cfg))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.node.Config()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderConfig(cfg))
}

func (s *Server) handleAddArbiter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	arbiterAddr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.node.AddArbiter(principal.Address, arbiterAddr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderArbiter(record))
}

func (s *Server) handleGetArbiter(w http.ResponseWriter, r *http.Request) {
	arbiterAddr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, found, err := s.node.Arbiter(arbiterAddr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "arbiter not found")
		return
	}
	writeJSON(w, http.StatusOK, renderArbiter(record))
}

func (s *Server) handleRemoveArbiter(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	arbiterAddr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.node.RemoveArbiter(principal.Address, arbiterAddr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderArbiter(record))
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req struct {
		Seller string `json:"seller"`
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	seller, err := parseAddress(req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	esc, err := s.node.CreateEscrow(principal.Address, seller, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderEscrow(esc))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	esc, found, err := s.node.Escrow(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "escrow not found")
		return
	}
	writeJSON(w, http.StatusOK, renderEscrow(esc))
}

type settlementFunc func(id [32]byte, caller [20]byte) (*escrow.Escrow, error)

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request, settle settlementFunc) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	esc, err := settle(id, principal.Address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEscrow(esc))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, s.node.ReleaseFunds)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, s.node.CancelEscrow)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, s.node.RaiseDispute)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, s.node.RefundBuyer)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	resolution, err := escrow.ParseResolution(req.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	esc, err := s.node.ResolveDispute(id, principal.Address, resolution)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEscrow(esc))
}

func (s *Server) handleInitializeReputation(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req struct {
		User string `json:"user"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user := principal.Address
	if strings.TrimSpace(req.User) != "" {
		parsed, err := parseAddress(req.User)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		user = parsed
	}
	record, err := s.node.InitializeReputation(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderReputation(record))
}

func (s *Server) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, found, err := s.node.Reputation(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "reputation not found")
		return
	}
	writeJSON(w, http.StatusOK, renderReputation(record))
}

func (s *Server) handleUpdateReputation(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	outcome, err := reputation.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.node.UpdateReputation(principal.Address, user, outcome)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReputation(record))
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.node.WithdrawFees(principal.Address, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String(), "status": "withdrawn"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"balance": balance.String(),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit storage not configured")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	events, err := s.store.ListEvents(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}
