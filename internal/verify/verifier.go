// Package verify confirms that claimed payments actually happened, either
// through an external facilitator or by direct on-chain receipt inspection,
// and credits the usage ledger on success.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/hoddukzoa12/openclaw/internal/paywall"
	"github.com/hoddukzoa12/openclaw/pkg/events"
	"github.com/hoddukzoa12/openclaw/pkg/keylock"
	"github.com/hoddukzoa12/openclaw/pkg/metrics"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"go.uber.org/zap"
)

// ErrVerificationFailed wraps negative verdicts; the reason string carries
// the diagnostic detail.
var ErrVerificationFailed = errors.New("settlement verification failed")

// SettlementResult reports a successful facilitator-relayed settlement.
type SettlementResult struct {
	PaymentID string `json:"paymentId"`
	TxRef     string `json:"txRef"`
	Network   string `json:"network"`
	Payer     string `json:"payer,omitempty"`
}

// TxSettlement reports a successful direct on-chain settlement. Crediting
// the session is the caller's responsibility.
type TxSettlement struct {
	TxRef  string       `json:"txRef"`
	Amount money.Micros `json:"amountMicros"`
	From   string       `json:"from"`
}

// Verifier applies both verification strategies. Only successful
// verification mutates request or session state.
type Verifier struct {
	requests    *paywall.Service
	sessions    *ledger.Ledger
	proofs      ProofStore
	facilitator FacilitatorClient
	chain       ChainReader
	policy      config.PaymentPolicy
	bus         *events.Bus
	logger      *zap.Logger
	locks       *keylock.KeyLock
}

// New creates a settlement verifier.
func New(
	requests *paywall.Service,
	sessions *ledger.Ledger,
	proofs ProofStore,
	facilitator FacilitatorClient,
	chain ChainReader,
	policy config.PaymentPolicy,
	bus *events.Bus,
	logger *zap.Logger,
) *Verifier {
	return &Verifier{
		requests:    requests,
		sessions:    sessions,
		proofs:      proofs,
		facilitator: facilitator,
		chain:       chain,
		policy:      policy,
		bus:         bus,
		logger:      logger,
		locks:       keylock.New(),
	}
}

// VerifySettlement checks a settlement proof for a payment request through
// the external facilitator. Temporal and replay checks run strictly before
// the network call; on an affirmative verdict the request is marked paid and
// the owning session credited.
func (v *Verifier) VerifySettlement(ctx context.Context, paymentID, proof string) (*SettlementResult, error) {
	req, err := v.requests.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		metrics.SettlementsVerified.WithLabelValues("facilitator", "replayed").Inc()
		return nil, paywall.ErrNotPending
	}

	if expired, _ := v.requests.MarkExpired(ctx, paymentID); expired {
		metrics.SettlementsVerified.WithLabelValues("facilitator", "expired").Inc()
		return nil, paywall.ErrRequestExpired
	}

	resp, err := v.facilitator.Verify(ctx, VerifyRequest{
		Proof:   proof,
		Network: req.Network,
		PayTo:   req.PayTo,
		Amount:  req.Amount.Atomic(),
	})
	if err != nil {
		metrics.SettlementsVerified.WithLabelValues("facilitator", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	if !resp.IsValid {
		if _, err := v.requests.MarkFailed(ctx, paymentID); err != nil {
			v.logger.Error("failed to mark request failed",
				zap.String("payment_id", paymentID),
				zap.Error(err),
			)
		}
		v.publish(ctx, events.EventPaymentFailed, paymentID, map[string]interface{}{
			"session_key": req.SessionKey,
			"reason":      resp.InvalidReason,
		})
		metrics.SettlementsVerified.WithLabelValues("facilitator", "invalid").Inc()
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, resp.InvalidReason)
	}

	// MarkPaid revalidates pending and expiry under the request lock, so a
	// concurrent settlement or expiry sweep cannot double-credit.
	paid, err := v.requests.MarkPaid(ctx, paymentID, resp.TxRef)
	if err != nil {
		metrics.SettlementsVerified.WithLabelValues("facilitator", "raced").Inc()
		return nil, err
	}

	if err := v.sessions.CreditSettlement(ctx, paid.SessionKey, resp.TxRef); err != nil {
		return nil, fmt.Errorf("failed to credit session: %w", err)
	}

	// The settled transaction also counts as a consumed proof for the
	// direct-verification rail.
	if resp.TxRef != "" {
		if _, err := v.proofs.MarkConsumed(ctx, resp.TxRef); err != nil {
			v.logger.Warn("failed to record consumed proof",
				zap.String("tx_ref", resp.TxRef),
				zap.Error(err),
			)
		}
	}

	v.publish(ctx, events.EventPaymentSettled, paymentID, map[string]interface{}{
		"session_key": paid.SessionKey,
		"tx_ref":      resp.TxRef,
		"amount":      paid.Amount.String(),
		"payer":       resp.Payer,
	})
	metrics.SettlementsVerified.WithLabelValues("facilitator", "ok").Inc()

	v.logger.Info("settlement verified",
		zap.String("payment_id", paymentID),
		zap.String("session_key", paid.SessionKey),
		zap.String("tx_ref", resp.TxRef),
	)
	return &SettlementResult{
		PaymentID: paymentID,
		TxRef:     resp.TxRef,
		Network:   req.Network,
		Payer:     resp.Payer,
	}, nil
}

// VerifyTransaction inspects a transaction reference directly on chain. The
// consumed-reference check runs before any other validation. On success the
// reference is recorded as consumed and the settled amount and sender are
// reported; crediting the session is left to the caller.
func (v *Verifier) VerifyTransaction(ctx context.Context, txRef string) (*TxSettlement, error) {
	if txRef == "" {
		return nil, fmt.Errorf("%w: missing transaction reference", ErrVerificationFailed)
	}
	if v.chain == nil {
		return nil, fmt.Errorf("%w: direct verification not configured", ErrVerificationFailed)
	}

	// Serialize per reference so two concurrent submissions of the same
	// proof cannot both pass the consumed check.
	v.locks.Lock(txRef)
	defer v.locks.Unlock(txRef)

	consumed, err := v.proofs.IsConsumed(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if consumed {
		metrics.ProofReplaysRejected.Inc()
		metrics.SettlementsVerified.WithLabelValues("onchain", "replayed").Inc()
		return nil, ErrProofReplayed
	}

	receipt, err := v.chain.TransactionReceipt(ctx, txRef)
	if errors.Is(err, ErrTxNotFound) {
		metrics.SettlementsVerified.WithLabelValues("onchain", "not_found").Inc()
		return nil, fmt.Errorf("%w: transaction not found", ErrVerificationFailed)
	}
	if err != nil {
		metrics.SettlementsVerified.WithLabelValues("onchain", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !receipt.Success {
		metrics.SettlementsVerified.WithLabelValues("onchain", "reverted").Inc()
		return nil, fmt.Errorf("%w: transaction did not succeed", ErrVerificationFailed)
	}

	transfer, reason := v.matchTransfer(receipt)
	if transfer == nil {
		metrics.SettlementsVerified.WithLabelValues("onchain", "mismatch").Inc()
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, reason)
	}

	if ok, err := v.proofs.MarkConsumed(ctx, txRef); err != nil {
		return nil, fmt.Errorf("failed to record consumed proof: %w", err)
	} else if !ok {
		metrics.ProofReplaysRejected.Inc()
		return nil, ErrProofReplayed
	}

	metrics.SettlementsVerified.WithLabelValues("onchain", "ok").Inc()
	v.logger.Info("transaction verified",
		zap.String("tx_ref", txRef),
		zap.String("from", transfer.From),
		zap.String("amount", transfer.Amount.String()),
	)
	return &TxSettlement{
		TxRef:  txRef,
		Amount: transfer.Amount,
		From:   transfer.From,
	}, nil
}

// matchTransfer locates the expected payment-token transfer in the receipt.
func (v *Verifier) matchTransfer(receipt *Receipt) (*TokenTransfer, string) {
	reason := "no transfer event for the configured payment token"
	for i := range receipt.Transfers {
		t := &receipt.Transfers[i]
		if !strings.EqualFold(t.Token, v.policy.TokenAddress) {
			continue
		}
		if !strings.EqualFold(t.To, v.policy.PayTo) {
			reason = "transfer recipient does not match receiving address"
			continue
		}
		if t.Amount < v.policy.Price {
			reason = fmt.Sprintf("transferred amount %s below price %s",
				t.Amount.String(), v.policy.Price.String())
			continue
		}
		return t, ""
	}
	return nil, reason
}

func (v *Verifier) publish(ctx context.Context, typ events.EventType, subject string, data map[string]interface{}) {
	if v.bus != nil {
		v.bus.Publish(ctx, events.NewEvent(typ, subject, data))
	}
}
