// Package allowance implements the delegated-authorization engine: one
// signed spending approval turned into many metered charges, validated
// against expiry, remaining budget and live on-chain state before every
// debit.
package allowance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/pkg/events"
	"github.com/hoddukzoa12/openclaw/pkg/keylock"
	"github.com/hoddukzoa12/openclaw/pkg/metrics"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"go.uber.org/zap"
)

// CheckResult is the verdict on whether a charge may proceed.
type CheckResult struct {
	Authorized           bool         `json:"authorized"`
	RemainingBalance     money.Micros `json:"remainingBalanceMicros"`
	NeedsReauthorization bool         `json:"needsReauthorization"`
	Reason               string       `json:"reason,omitempty"`
}

// ChargeRequest asks for one delegated charge.
type ChargeRequest struct {
	UserID        string       `json:"userId"`
	WalletAddress string       `json:"walletAddress"`
	Amount        money.Micros `json:"amountMicros"`
}

// ChargeResult reports the outcome of one delegated charge. Business
// rejections live in Success/Reason; only infrastructure failures surface as
// errors from ProcessPayment.
type ChargeResult struct {
	Success              bool         `json:"success"`
	SettlementRef        string       `json:"settlementRef,omitempty"`
	RemainingBalance     money.Micros `json:"remainingBalanceMicros"`
	NeedsReauthorization bool         `json:"needsReauthorization"`
	Reason               string       `json:"reason,omitempty"`
}

// UsageStats reports an authorization in display-ready values.
type UsageStats struct {
	Authorized string    `json:"authorized"`
	Spent      string    `json:"spent"`
	Remaining  string    `json:"remaining"`
	State      State     `json:"state"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Engine owns authorization records. The check-then-debit sequence for one
// (user, address) pair runs under a per-key lock, so two concurrent charges
// can never both pass the balance check against the pre-debit value.
type Engine struct {
	store  Store
	chain  Reader
	policy config.PaymentPolicy
	bus    *events.Bus
	logger *zap.Logger
	locks  *keylock.KeyLock

	queueMu sync.Mutex
	queue   []ChargeRequest

	now func() time.Time
}

// NewEngine creates a delegated-authorization engine. chain may be nil when
// no reader is configured, in which case the stored record is authoritative.
func NewEngine(store Store, chain Reader, policy config.PaymentPolicy, bus *events.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		chain:  chain,
		policy: policy,
		bus:    bus,
		logger: logger,
		locks:  keylock.New(),
		now:    time.Now,
	}
}

// Register installs or replaces the authorization for (user, address),
// resetting the spent amount to zero. It always succeeds.
func (e *Engine) Register(ctx context.Context, userID, address string, ceiling money.Micros, expiresAt time.Time, permitSig string) error {
	key := storeKey(userID, address)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	auth := &Authorization{
		UserID:          userID,
		WalletAddress:   address,
		Authorized:      ceiling,
		Spent:           0,
		PermitSignature: permitSig,
		CreatedAt:       e.now(),
		ExpiresAt:       expiresAt,
	}
	if err := e.store.Put(ctx, auth); err != nil {
		return fmt.Errorf("failed to store authorization: %w", err)
	}

	e.publish(ctx, events.EventAllowanceRegistered, key, map[string]interface{}{
		"user":       userID,
		"address":    address,
		"authorized": ceiling.String(),
		"expires_at": expiresAt,
	})
	e.logger.Info("registered authorization",
		zap.String("user", userID),
		zap.String("address", address),
		zap.String("authorized", ceiling.String()),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// Check evaluates whether a charge of the requested amount would be
// authorized right now.
func (e *Engine) Check(ctx context.Context, userID, address string, amount money.Micros) (*CheckResult, error) {
	key := storeKey(userID, address)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	return e.checkLocked(ctx, userID, address, amount)
}

// checkLocked runs the ordered authorization rules. Callers hold the
// per-key lock.
func (e *Engine) checkLocked(ctx context.Context, userID, address string, amount money.Micros) (*CheckResult, error) {
	auth, err := e.store.Get(ctx, userID, address)
	if errors.Is(err, ErrAuthorizationNotFound) {
		return &CheckResult{
			NeedsReauthorization: true,
			Reason:               "no authorization on file",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization: %w", err)
	}

	now := e.now()
	if !now.Before(auth.ExpiresAt) {
		return &CheckResult{
			RemainingBalance:     auth.Remaining(),
			NeedsReauthorization: true,
			Reason:               "authorization expired",
		}, nil
	}

	remaining := auth.Remaining()
	if remaining < amount {
		return &CheckResult{
			RemainingBalance:     remaining,
			NeedsReauthorization: true,
			Reason:               "insufficient authorized balance",
		}, nil
	}

	// The stored record is a cache of intent; the on-chain allowance must
	// independently be live and large enough.
	if e.chain != nil {
		onchain, err := e.chain.Allowance(ctx, address)
		if err != nil {
			return &CheckResult{
				RemainingBalance:     remaining,
				NeedsReauthorization: true,
				Reason:               fmt.Sprintf("on-chain allowance check failed: %v", err),
			}, nil
		}
		if !onchain.ExpiresAt.IsZero() && !now.Before(onchain.ExpiresAt) {
			return &CheckResult{
				RemainingBalance:     remaining,
				NeedsReauthorization: true,
				Reason:               "on-chain allowance expired",
			}, nil
		}
		if onchain.Amount < amount {
			return &CheckResult{
				RemainingBalance:     remaining,
				NeedsReauthorization: true,
				Reason:               "on-chain allowance does not cover the charge",
			}, nil
		}
	}

	result := &CheckResult{
		Authorized:       true,
		RemainingBalance: remaining,
	}
	// Proactive renewal prompt: still authorized, but the budget left after
	// this charge would dip under the threshold.
	if remaining-amount < e.policy.LowBalanceThreshold {
		result.NeedsReauthorization = true
	}
	return result, nil
}

// ProcessPayment executes one delegated charge: ceiling gate, authorization
// check and debit as a single atomic step per (user, address) key. Execution
// is simulated locally; the settlement reference identifies the debit.
func (e *Engine) ProcessPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.Amount <= 0 {
		return &ChargeResult{Reason: "charge amount must be positive"}, nil
	}
	if e.policy.MaxTxAmount > 0 && req.Amount > e.policy.MaxTxAmount {
		metrics.AllowanceCharges.WithLabelValues("over_ceiling").Inc()
		return &ChargeResult{
			Reason: fmt.Sprintf("amount %s exceeds per-transaction ceiling %s",
				req.Amount.String(), e.policy.MaxTxAmount.String()),
		}, nil
	}

	key := storeKey(req.UserID, req.WalletAddress)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	check, err := e.checkLocked(ctx, req.UserID, req.WalletAddress, req.Amount)
	if err != nil {
		return nil, err
	}
	if !check.Authorized {
		metrics.AllowanceCharges.WithLabelValues("rejected").Inc()
		return &ChargeResult{
			RemainingBalance:     check.RemainingBalance,
			NeedsReauthorization: check.NeedsReauthorization,
			Reason:               check.Reason,
		}, nil
	}

	auth, err := e.store.Get(ctx, req.UserID, req.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization: %w", err)
	}
	auth.Spent += req.Amount
	if err := e.store.Put(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to debit authorization: %w", err)
	}

	ref := "chg_" + uuid.New().String()
	remaining := auth.Remaining()

	metrics.AllowanceCharges.WithLabelValues("ok").Inc()
	metrics.AllowanceRemaining.WithLabelValues(req.UserID).Set(float64(remaining) / 1e6)

	e.publish(ctx, events.EventAllowanceCharged, key, map[string]interface{}{
		"user":           req.UserID,
		"address":        req.WalletAddress,
		"amount":         req.Amount.String(),
		"remaining":      remaining.String(),
		"settlement_ref": ref,
	})
	if check.NeedsReauthorization {
		e.publish(ctx, events.EventAllowanceLowBalance, key, map[string]interface{}{
			"user":      req.UserID,
			"address":   req.WalletAddress,
			"remaining": remaining.String(),
			"threshold": e.policy.LowBalanceThreshold.String(),
		})
	}

	e.logger.Info("processed delegated charge",
		zap.String("user", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("remaining", remaining.String()),
		zap.String("settlement_ref", ref),
	)
	return &ChargeResult{
		Success:              true,
		SettlementRef:        ref,
		RemainingBalance:     remaining,
		NeedsReauthorization: check.NeedsReauthorization,
	}, nil
}

// QueuePayment appends a charge to the pending queue without processing it.
func (e *Engine) QueuePayment(req ChargeRequest) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	e.queue = append(e.queue, req)
}

// PendingPayments returns the number of queued charges.
func (e *Engine) PendingPayments() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.queue)
}

// ProcessPendingPayments drains the queue strictly in arrival order,
// collecting one result per entry. Infrastructure failures are recorded as
// failed results so the drain never stops part way.
func (e *Engine) ProcessPendingPayments(ctx context.Context) []ChargeResult {
	e.queueMu.Lock()
	pending := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	results := make([]ChargeResult, 0, len(pending))
	for _, req := range pending {
		res, err := e.ProcessPayment(ctx, req)
		if err != nil {
			results = append(results, ChargeResult{Reason: err.Error()})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// Revoke removes the authorization and reports whether one existed.
func (e *Engine) Revoke(ctx context.Context, userID, address string) (bool, error) {
	key := storeKey(userID, address)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	existed, err := e.store.Delete(ctx, userID, address)
	if err != nil {
		return false, fmt.Errorf("failed to revoke authorization: %w", err)
	}
	if existed {
		e.publish(ctx, events.EventAllowanceRevoked, key, map[string]interface{}{
			"user":    userID,
			"address": address,
		})
		e.logger.Info("revoked authorization",
			zap.String("user", userID),
			zap.String("address", address),
		)
	}
	return existed, nil
}

// Stats reports the authorization in display-ready values, or
// ErrAuthorizationNotFound.
func (e *Engine) Stats(ctx context.Context, userID, address string) (*UsageStats, error) {
	auth, err := e.store.Get(ctx, userID, address)
	if err != nil {
		return nil, err
	}

	return &UsageStats{
		Authorized: auth.Authorized.String(),
		Spent:      auth.Spent.String(),
		Remaining:  auth.Remaining().String(),
		State:      auth.StateAt(e.now()),
		ExpiresAt:  auth.ExpiresAt,
	}, nil
}

func (e *Engine) publish(ctx context.Context, typ events.EventType, subject string, data map[string]interface{}) {
	if e.bus != nil {
		e.bus.Publish(ctx, events.NewEvent(typ, subject, data))
	}
}
