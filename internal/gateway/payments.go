package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/hoddukzoa12/openclaw/internal/paywall"
	"github.com/hoddukzoa12/openclaw/internal/verify"
	"github.com/hoddukzoa12/openclaw/pkg/metrics"
	"go.uber.org/zap"
)

type turnRequest struct {
	SessionKey string `json:"sessionKey"`
	Channel    string `json:"channel"`
	UserID     string `json:"userId"`
}

// turnDecision is the structured block decision returned for every recorded
// turn. When Block is true the caller should withhold the reply and surface
// the payment prompt instead.
type turnDecision struct {
	Block        bool      `json:"block"`
	MessageCount int64     `json:"messageCount"`
	PaymentID    string    `json:"paymentId,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	PayTo        string    `json:"payTo,omitempty"`
	Network      string    `json:"network,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	Link         string    `json:"link,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// handleTurn records one conversational turn and decides whether the reply
// must be withheld pending payment. If the session already has a live
// payment request the same one is surfaced again rather than minting a
// duplicate.
func (g *Gateway) handleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionKey == "" {
		g.writeError(w, http.StatusBadRequest, "sessionKey is required")
		return
	}

	sess, err := g.sessions.GetOrCreate(ctx, req.SessionKey, req.Channel, req.UserID)
	if err != nil {
		g.logger.Error("failed to load session", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	count, err := g.sessions.IncrementMessageCount(ctx, req.SessionKey)
	if err != nil {
		g.logger.Error("failed to record turn", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to record turn")
		return
	}
	sess.MessageCount = count

	if !g.sessions.IsPaymentRequired(sess) {
		g.writeJSON(w, http.StatusOK, turnDecision{Block: false, MessageCount: count})
		return
	}

	metrics.PaymentsRequired.Inc()

	payment, err := g.currentPaymentRequest(r, sess)
	if err != nil {
		g.logger.Error("failed to create payment request", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to create payment request")
		return
	}

	decision := turnDecision{
		Block:        true,
		MessageCount: count,
		PaymentID:    payment.ID,
		Amount:       payment.Amount.String(),
		PayTo:        payment.PayTo,
		Network:      payment.Network,
		ExpiresAt:    payment.ExpiresAt,
		Message: fmt.Sprintf("You've used your included messages. Pay %s to continue the conversation.",
			payment.Amount.String()),
	}
	if g.paylinks.Enabled() {
		link, err := g.paylinks.Link(payment.ID, sess.Key, payment.ExpiresAt)
		if err != nil {
			g.logger.Error("failed to mint payment link", zap.Error(err))
		} else {
			decision.Link = link
		}
	}

	g.writeJSON(w, http.StatusPaymentRequired, decision)
}

// currentPaymentRequest returns the session's live pending request, or mints
// a fresh one when none exists or the old one lapsed.
func (g *Gateway) currentPaymentRequest(r *http.Request, sess *ledger.Session) (*paywall.PaymentRequest, error) {
	ctx := r.Context()

	if sess.PendingPaymentID != "" {
		existing, err := g.paywall.Get(ctx, sess.PendingPaymentID)
		if err == nil && existing.Status == paywall.StatusPending && !existing.ExpiredBy(time.Now()) {
			return existing, nil
		}
	}
	return g.paywall.CreateRequest(ctx, sess)
}

func (g *Gateway) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	stats, err := g.sessions.Stats(r.Context(), key)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		g.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load session stats", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load session stats")
		return
	}

	g.writeJSON(w, http.StatusOK, stats)
}

func (g *Gateway) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, err := g.paywall.Get(r.Context(), id)
	if errors.Is(err, paywall.ErrRequestNotFound) {
		g.writeError(w, http.StatusNotFound, "payment request not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load payment request", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load payment request")
		return
	}

	g.writeJSON(w, http.StatusOK, payment)
}

type settleRequest struct {
	Proof string `json:"proof"`
}

// handleSettle verifies a facilitator-relayed settlement proof against a
// payment request.
func (g *Gateway) handleSettle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Proof == "" {
		g.writeError(w, http.StatusBadRequest, "proof is required")
		return
	}

	result, err := g.verifier.VerifySettlement(r.Context(), id, req.Proof)
	if err != nil {
		g.writeSettlementError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, result)
}

type txSettleRequest struct {
	SessionKey string `json:"sessionKey"`
	TxRef      string `json:"txRef"`
}

// handleTxSettle verifies a payment by transaction reference and credits the
// session on success.
func (g *Gateway) handleTxSettle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req txSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionKey == "" || req.TxRef == "" {
		g.writeError(w, http.StatusBadRequest, "sessionKey and txRef are required")
		return
	}

	// The session must exist before the reference is consumed: a verified
	// proof is burned exactly once, and a typo'd key must not spend it.
	if _, err := g.sessions.Get(ctx, req.SessionKey); err != nil {
		if errors.Is(err, ledger.ErrSessionNotFound) {
			g.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		g.logger.Error("failed to load session", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	settlement, err := g.verifier.VerifyTransaction(ctx, req.TxRef)
	if err != nil {
		g.writeSettlementError(w, err)
		return
	}

	if err := g.sessions.CreditSettlement(ctx, req.SessionKey, settlement.TxRef); err != nil {
		g.logger.Error("failed to credit settlement",
			zap.String("session", req.SessionKey),
			zap.String("tx_ref", settlement.TxRef),
			zap.Error(err),
		)
		g.writeError(w, http.StatusInternalServerError, "failed to credit settlement")
		return
	}
	if settlement.From != "" {
		if err := g.sessions.LinkWallet(ctx, req.SessionKey, settlement.From); err != nil {
			g.logger.Warn("failed to link wallet", zap.Error(err))
		}
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"txRef":    settlement.TxRef,
		"amount":   settlement.Amount.String(),
		"from":     settlement.From,
		"credited": true,
	})
}

// handleResolvePaylink resolves a signed payment-link token back to the
// payment request it was minted for.
func (g *Gateway) handleResolvePaylink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		g.writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	paymentID, sessionKey, err := g.paylinks.Verify(token)
	if err != nil {
		g.writeError(w, http.StatusUnauthorized, "payment link invalid or expired")
		return
	}

	payment, err := g.paywall.Get(r.Context(), paymentID)
	if errors.Is(err, paywall.ErrRequestNotFound) {
		g.writeError(w, http.StatusNotFound, "payment request not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load payment request", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "failed to load payment request")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment":    payment,
		"sessionKey": sessionKey,
	})
}

// writeSettlementError maps verification failures onto the HTTP surface.
// Infrastructure faults (unreachable facilitator, indexer down) come back as
// 502 so clients can retry the same request later.
func (g *Gateway) writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paywall.ErrRequestNotFound):
		g.writeError(w, http.StatusNotFound, "payment request not found")
	case errors.Is(err, paywall.ErrNotPending):
		g.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, verify.ErrProofReplayed):
		g.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, paywall.ErrRequestExpired):
		g.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, verify.ErrVerificationFailed):
		g.writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		g.logger.Error("settlement verification failed", zap.Error(err))
		g.writeError(w, http.StatusBadGateway, "verification backend unavailable")
	}
}
