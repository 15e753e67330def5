package allowance

import (
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// State is the derived lifecycle state of an authorization. It is computed
// fresh on every check, never stored.
type State string

const (
	StateAbsent    State = "absent"
	StateActive    State = "active"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// Authorization is a standing permission to auto-charge a user: one signed
// approval turned into many metered charges. The record caches intent; the
// on-chain allowance remains the source of truth.
type Authorization struct {
	// UserID identifies the authorizing user.
	UserID string

	// WalletAddress is the user's wallet the allowance is drawn from.
	WalletAddress string

	// Authorized is the ceiling amount the user signed off on.
	Authorized money.Micros

	// Spent is the amount already charged against this authorization.
	// Invariant: Spent <= Authorized.
	Spent money.Micros

	// PermitSignature is the pre-signed transfer proof, when supplied.
	PermitSignature string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Remaining is the budget left under the ceiling.
func (a *Authorization) Remaining() money.Micros {
	return a.Authorized - a.Spent
}

// StateAt computes the derived state at the given instant.
func (a *Authorization) StateAt(now time.Time) State {
	if a == nil {
		return StateAbsent
	}
	if !now.Before(a.ExpiresAt) {
		return StateExpired
	}
	if a.Remaining() <= 0 {
		return StateExhausted
	}
	return StateActive
}
