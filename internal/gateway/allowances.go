package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hoddukzoa12/openclaw/internal/allowance"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"go.uber.org/zap"
)

type registerAllowanceRequest struct {
	UserID          string    `json:"userId"`
	WalletAddress   string    `json:"walletAddress"`
	Authorized      string    `json:"authorized"`
	ExpiresAt       time.Time `json:"expiresAt"`
	PermitSignature string    `json:"permitSignature"`
}

func (g *Gateway) handleRegisterAllowance(w http.ResponseWriter, r *http.Request) {
	var req registerAllowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.WalletAddress == "" {
		g.writeError(w, http.StatusBadRequest, "userId and walletAddress are required")
		return
	}
	ceiling, err := money.ParseUSD(req.Authorized)
	if err != nil || ceiling <= 0 {
		g.writeError(w, http.StatusBadRequest, "authorized must be a positive dollar amount")
		return
	}
	if !req.ExpiresAt.After(time.Now()) {
		g.writeError(w, http.StatusBadRequest, "expiresAt must be in the future")
		return
	}

	if err := g.allowances.Register(r.Context(), req.UserID, req.WalletAddress, ceiling, req.ExpiresAt, req.PermitSignature); err != nil {
		g.logger.Error("failed to register authorization", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to register authorization")
		return
	}

	g.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"userId":        req.UserID,
		"walletAddress": req.WalletAddress,
		"authorized":    ceiling.String(),
		"expiresAt":     req.ExpiresAt,
	})
}

type allowanceAmountRequest struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	Amount        string `json:"amount"`
}

func (r *allowanceAmountRequest) parse() (money.Micros, string) {
	if r.UserID == "" || r.WalletAddress == "" {
		return 0, "userId and walletAddress are required"
	}
	amount, err := money.ParseUSD(r.Amount)
	if err != nil || amount <= 0 {
		return 0, "amount must be a positive dollar amount"
	}
	return amount, ""
}

func (g *Gateway) handleCheckAllowance(w http.ResponseWriter, r *http.Request) {
	var req allowanceAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, badReq := req.parse()
	if badReq != "" {
		g.writeError(w, http.StatusBadRequest, badReq)
		return
	}

	result, err := g.allowances.Check(r.Context(), req.UserID, req.WalletAddress, amount)
	if err != nil {
		g.logger.Error("failed to check authorization", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to check authorization")
		return
	}

	g.writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req allowanceAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, badReq := req.parse()
	if badReq != "" {
		g.writeError(w, http.StatusBadRequest, badReq)
		return
	}

	result, err := g.allowances.ProcessPayment(r.Context(), allowance.ChargeRequest{
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
		Amount:        amount,
	})
	if err != nil {
		g.logger.Error("failed to process charge", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to process charge")
		return
	}

	if !result.Success {
		g.writeJSON(w, http.StatusPaymentRequired, result)
		return
	}
	g.writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleQueueCharge(w http.ResponseWriter, r *http.Request) {
	var req allowanceAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, badReq := req.parse()
	if badReq != "" {
		g.writeError(w, http.StatusBadRequest, badReq)
		return
	}

	g.allowances.QueuePayment(allowance.ChargeRequest{
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
		Amount:        amount,
	})

	g.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":  true,
		"pending": g.allowances.PendingPayments(),
	})
}

func (g *Gateway) handleDrainQueue(w http.ResponseWriter, r *http.Request) {
	results := g.allowances.ProcessPendingPayments(r.Context())
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": len(results),
		"results":   results,
	})
}

func (g *Gateway) handleAllowanceStats(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	address := chi.URLParam(r, "address")

	stats, err := g.allowances.Stats(r.Context(), user, address)
	if errors.Is(err, allowance.ErrAuthorizationNotFound) {
		g.writeError(w, http.StatusNotFound, "authorization not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load authorization stats", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load authorization stats")
		return
	}

	g.writeJSON(w, http.StatusOK, stats)
}

func (g *Gateway) handleRevokeAllowance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	address := chi.URLParam(r, "address")

	existed, err := g.allowances.Revoke(r.Context(), user, address)
	if err != nil {
		g.logger.Error("failed to revoke authorization", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to revoke authorization")
		return
	}
	if !existed {
		g.writeError(w, http.StatusNotFound, "authorization not found")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (g *Gateway) handleApprovalPlan(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	amountStr := r.URL.Query().Get("amount")
	if amountStr == "" {
		amountStr = g.policy.MaxTxAmount.String()
	}
	amount, err := money.ParseUSD(amountStr)
	if err != nil || amount <= 0 {
		g.writeError(w, http.StatusBadRequest, "amount must be a positive dollar amount")
		return
	}

	plan, err := g.allowances.ApprovalPlan(r.Context(), address, amount)
	if err != nil {
		g.logger.Error("failed to build approval plan", zap.Error(err))
		g.writeError(w, http.StatusBadGateway, "failed to inspect on-chain state")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready": len(plan) == 0,
		"steps": plan,
	})
}
