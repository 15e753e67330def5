// Package paywall manages the lifecycle of time-boxed payment requests:
// creation, status transitions, expiry and garbage collection.
package paywall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/hoddukzoa12/openclaw/pkg/events"
	"github.com/hoddukzoa12/openclaw/pkg/keylock"
	"github.com/hoddukzoa12/openclaw/pkg/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNotPending is returned when a transition is attempted on a request
	// that already reached a terminal state.
	ErrNotPending = errors.New("payment request already settled")

	// ErrRequestExpired is returned when the payable window has passed.
	ErrRequestExpired = errors.New("payment request expired")
)

// Service owns payment request records. Transitions on one request are
// serialized under a per-id lock, which makes the expire-vs-verify race
// deterministic: whichever path observes "pending" while holding the lock
// wins.
type Service struct {
	store    Store
	sessions *ledger.Ledger
	policy   config.PaymentPolicy
	bus      *events.Bus
	logger   *zap.Logger
	locks    *keylock.KeyLock
	now      func() time.Time
}

// NewService creates a payment request service.
func NewService(store Store, sessions *ledger.Ledger, policy config.PaymentPolicy, bus *events.Bus, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		policy:   policy,
		bus:      bus,
		logger:   logger,
		locks:    keylock.New(),
		now:      time.Now,
	}
}

// CreateRequest allocates a new pending request for the session and stamps
// the session's pending payment reference. It does not check for an existing
// pending request; callers reuse the session's pending reference instead of
// double-issuing.
func (s *Service) CreateRequest(ctx context.Context, sess *ledger.Session) (*PaymentRequest, error) {
	now := s.now()
	req := &PaymentRequest{
		ID:         uuid.New().String(),
		SessionKey: sess.Key,
		Amount:     s.policy.Price,
		Network:    s.policy.Network,
		PayTo:      s.policy.PayTo,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.policy.RequestTTL),
	}

	if err := s.store.Put(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store payment request: %w", err)
	}
	if err := s.sessions.SetPendingPayment(ctx, sess.Key, req.ID); err != nil {
		return nil, fmt.Errorf("failed to stamp pending payment: %w", err)
	}

	metrics.PaymentRequestsCreated.Inc()
	if s.bus != nil {
		s.bus.Publish(ctx, events.NewEvent(events.EventPaymentRequired, req.ID, map[string]interface{}{
			"session_key": sess.Key,
			"amount":      req.Amount.String(),
			"expires_at":  req.ExpiresAt,
		}))
	}
	s.logger.Info("created payment request",
		zap.String("payment_id", req.ID),
		zap.String("session_key", sess.Key),
		zap.String("amount", req.Amount.String()),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return req, nil
}

// Get returns the request for id, or ErrRequestNotFound.
func (s *Service) Get(ctx context.Context, id string) (*PaymentRequest, error) {
	return s.store.Get(ctx, id)
}

// MarkPaid transitions a pending request to paid and stamps its settlement
// reference. The pending and expiry checks are re-run under the request lock,
// so a request past its window can never become paid even if a late proof
// arrives.
func (s *Service) MarkPaid(ctx context.Context, id, txRef string) (*PaymentRequest, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		return nil, ErrNotPending
	}
	if req.ExpiredBy(s.now()) {
		s.expireLocked(ctx, req)
		return nil, ErrRequestExpired
	}

	req.Status = StatusPaid
	req.TxRef = txRef
	if err := s.store.Put(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to mark request paid: %w", err)
	}
	return req, nil
}

// MarkFailed transitions a pending request to failed.
func (s *Service) MarkFailed(ctx context.Context, id string) (*PaymentRequest, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		return nil, ErrNotPending
	}

	req.Status = StatusFailed
	if err := s.store.Put(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to mark request failed: %w", err)
	}
	return req, nil
}

// MarkExpired transitions a pending request past its window to expired.
// It is a no-op for requests that are terminal or still payable.
func (s *Service) MarkExpired(ctx context.Context, id string) (bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Terminal() || !req.ExpiredBy(s.now()) {
		return false, nil
	}

	if err := s.expireLocked(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

// expireLocked must be called with the request lock held and req pending.
func (s *Service) expireLocked(ctx context.Context, req *PaymentRequest) error {
	req.Status = StatusExpired
	if err := s.store.Put(ctx, req); err != nil {
		return fmt.Errorf("failed to mark request expired: %w", err)
	}

	metrics.PaymentRequestsExpired.Inc()
	if s.bus != nil {
		s.bus.Publish(ctx, events.NewEvent(events.EventPaymentExpired, req.ID, map[string]interface{}{
			"session_key": req.SessionKey,
			"amount":      req.Amount.String(),
		}))
	}
	s.logger.Info("expired payment request",
		zap.String("payment_id", req.ID),
		zap.String("session_key", req.SessionKey),
	)
	return nil
}

// Cleanup sweeps all requests: pending requests past their window are marked
// expired (counted in the return value) and terminal requests older than the
// retention window are deleted outright. The sweep is idempotent and safe to
// run concurrently with creation and verification.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	reqs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list payment requests: %w", err)
	}

	now := s.now()
	expired := 0
	purged := 0

	for _, req := range reqs {
		if req.Status == StatusPending && req.ExpiredBy(now) {
			ok, err := s.MarkExpired(ctx, req.ID)
			if err != nil && !errors.Is(err, ErrRequestNotFound) {
				s.logger.Error("failed to expire payment request",
					zap.String("payment_id", req.ID),
					zap.Error(err),
				)
				continue
			}
			if ok {
				expired++
			}
			continue
		}

		if req.Terminal() && now.Sub(req.CreatedAt) > s.policy.RetentionWindow {
			if err := s.store.Delete(ctx, req.ID); err != nil {
				s.logger.Error("failed to purge payment request",
					zap.String("payment_id", req.ID),
					zap.Error(err),
				)
				continue
			}
			purged++
		}
	}

	if purged > 0 {
		metrics.PaymentRequestsPurged.Add(float64(purged))
	}
	if expired > 0 || purged > 0 {
		s.logger.Info("cleanup sweep finished",
			zap.Int("expired", expired),
			zap.Int("purged", purged),
		)
	}
	return expired, nil
}
