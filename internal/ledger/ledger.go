// Package ledger tracks per-conversation message usage and makes the central
// payment-required decision.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/pkg/keylock"
	"github.com/hoddukzoa12/openclaw/pkg/metrics"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"go.uber.org/zap"
)

// Ledger owns session records. All session mutations flow through it so that
// read-modify-write sequences on one session are serialized.
type Ledger struct {
	store  Store
	policy config.PaymentPolicy
	logger *zap.Logger
	locks  *keylock.KeyLock
}

// Stats summarizes a session's usage and spend.
type Stats struct {
	Total      int64        `json:"total"`
	Paid       int64        `json:"paid"`
	Unpaid     int64        `json:"unpaid"`
	TotalSpent money.Micros `json:"totalSpentMicros"`
	Spent      string       `json:"totalSpent"`
}

// New creates a ledger over the given store.
func New(store Store, policy config.PaymentPolicy, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		policy: policy,
		logger: logger,
		locks:  keylock.New(),
	}
}

// GetOrCreate returns the session for key, creating a zeroed record on first
// sight. It never fails on a missing session.
func (l *Ledger) GetOrCreate(ctx context.Context, key, channel, userID string) (*Session, error) {
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	sess, err := l.store.Get(ctx, key)
	if err == nil {
		return sess, nil
	}
	if err != ErrSessionNotFound {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := time.Now()
	sess = &Session{
		Key:       key,
		Channel:   channel,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	l.logger.Debug("created session",
		zap.String("session_key", key),
		zap.String("channel", channel),
	)
	return sess, nil
}

// Get returns the session for key, or ErrSessionNotFound.
func (l *Ledger) Get(ctx context.Context, key string) (*Session, error) {
	return l.store.Get(ctx, key)
}

// IncrementMessageCount bumps the session's total count and returns the new
// value. A missing session is a benign no-op returning 0: a session must
// already exist by the time a message is counted.
func (l *Ledger) IncrementMessageCount(ctx context.Context, key string) (int64, error) {
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	sess, err := l.store.Get(ctx, key)
	if err == ErrSessionNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load session: %w", err)
	}

	sess.MessageCount++
	sess.UpdatedAt = time.Now()
	if err := l.store.Put(ctx, sess); err != nil {
		return 0, fmt.Errorf("failed to update session: %w", err)
	}

	metrics.MessagesCounted.WithLabelValues(sess.Channel).Inc()
	return sess.MessageCount, nil
}

// PaymentRequired is the central billing rule: free allowance is consumed by
// unpaid messages, and each settlement credits exactly one message.
// It is a pure function of session and policy.
func PaymentRequired(sess *Session, policy config.PaymentPolicy) bool {
	if !policy.Enabled {
		return false
	}
	unpaid := sess.MessageCount - sess.PaidMessageCount
	return unpaid >= int64(policy.FreeQuota)
}

// IsPaymentRequired applies PaymentRequired under the ledger's own policy.
func (l *Ledger) IsPaymentRequired(sess *Session) bool {
	return PaymentRequired(sess, l.policy)
}

// Stats returns usage counters and derived spend for a session, or
// ErrSessionNotFound for keys that have never been seen. "Never used" is
// deliberately distinguishable from "used and paid in full".
func (l *Ledger) Stats(ctx context.Context, key string) (*Stats, error) {
	sess, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	spent := money.Micros(sess.PaidMessageCount) * l.policy.Price
	return &Stats{
		Total:      sess.MessageCount,
		Paid:       sess.PaidMessageCount,
		Unpaid:     sess.MessageCount - sess.PaidMessageCount,
		TotalSpent: spent,
		Spent:      spent.String(),
	}, nil
}

// CreditSettlement records one successful settlement against the session:
// paid count up by one, settlement reference and time stamped, pending
// payment reference cleared.
func (l *Ledger) CreditSettlement(ctx context.Context, key, txRef string) error {
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	sess, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}

	sess.PaidMessageCount++
	sess.LastTxRef = txRef
	sess.LastPaidAt = time.Now()
	sess.PendingPaymentID = ""
	sess.UpdatedAt = sess.LastPaidAt
	if err := l.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("failed to credit session: %w", err)
	}

	l.logger.Info("credited settlement",
		zap.String("session_key", key),
		zap.String("tx_ref", txRef),
		zap.Int64("paid_message_count", sess.PaidMessageCount),
	)
	return nil
}

// SetPendingPayment stamps the session's pending payment request reference.
func (l *Ledger) SetPendingPayment(ctx context.Context, key, paymentID string) error {
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	sess, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}

	sess.PendingPaymentID = paymentID
	sess.UpdatedAt = time.Now()
	return l.store.Put(ctx, sess)
}

// LinkWallet associates a wallet address with the session.
func (l *Ledger) LinkWallet(ctx context.Context, key, address string) error {
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	sess, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}

	sess.WalletAddress = address
	sess.UpdatedAt = time.Now()
	return l.store.Put(ctx, sess)
}
