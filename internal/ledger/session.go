package ledger

import "time"

// Session tracks usage and payment state for one metered conversation.
// Records are created lazily on first turn and retained for the life of the
// store; they are never deleted.
type Session struct {
	// Key is the opaque, stable identifier for the conversation+user pair.
	Key string

	// Channel identifies the chat surface the conversation runs on.
	Channel string

	// UserID identifies the user being metered.
	UserID string

	// MessageCount is the total number of messages seen.
	MessageCount int64

	// PaidMessageCount is the number of settled message credits.
	// The metering decision relies on MessageCount - PaidMessageCount, so
	// producers must keep the two monotonically consistent.
	PaidMessageCount int64

	// LastTxRef is the settlement transaction reference of the most recent
	// successful payment.
	LastTxRef string

	// LastPaidAt is when the most recent settlement was credited.
	LastPaidAt time.Time

	// PendingPaymentID references the one non-terminal payment request for
	// this session, if any.
	PendingPaymentID string

	// WalletAddress is the user's linked wallet, when known.
	WalletAddress string

	CreatedAt time.Time
	UpdatedAt time.Time
}
