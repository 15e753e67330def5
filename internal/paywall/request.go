package paywall

import (
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// Status is the lifecycle state of a payment request. Transitions are
// one-directional: pending -> paid | expired | failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// PaymentRequest is one time-boxed invitation to settle a charge.
type PaymentRequest struct {
	// ID uniquely identifies the request.
	ID string `json:"id"`

	// SessionKey is the owning session.
	SessionKey string `json:"sessionKey"`

	// Amount is the charge in micro-dollars.
	Amount money.Micros `json:"amountMicros"`

	// Network is the settlement network identity.
	Network string `json:"network"`

	// PayTo is the receiving address.
	PayTo string `json:"payTo"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// TxRef is the settlement transaction reference, set on paid requests.
	TxRef string `json:"txRef,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Terminal reports whether the request can no longer change state.
func (r *PaymentRequest) Terminal() bool {
	return r.Status != StatusPending
}

// ExpiredBy reports whether the payable window has passed at the given instant.
func (r *PaymentRequest) ExpiredBy(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
