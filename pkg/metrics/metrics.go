package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metering
	MessagesCounted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_messages_counted_total",
			Help: "Messages counted against metered sessions",
		},
		[]string{"channel"},
	)

	PaymentsRequired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_payments_required_total",
			Help: "Turns that were blocked pending payment",
		},
	)

	// Payment request lifecycle
	PaymentRequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_payment_requests_created_total",
			Help: "Payment requests issued",
		},
	)

	PaymentRequestsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_payment_requests_expired_total",
			Help: "Payment requests expired by the cleanup sweep",
		},
	)

	PaymentRequestsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_payment_requests_purged_total",
			Help: "Terminal payment requests deleted after retention",
		},
	)

	// Settlement verification
	SettlementsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_settlements_verified_total",
			Help: "Settlement verification outcomes by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	ProofReplaysRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywall_proof_replays_rejected_total",
			Help: "Settlement proofs rejected because they were already consumed",
		},
	)

	// Delegated allowance
	AllowanceCharges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_allowance_charges_total",
			Help: "Delegated allowance charge outcomes",
		},
		[]string{"result"},
	)

	AllowanceRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paywall_allowance_remaining_usd",
			Help: "Remaining delegated allowance per user in USD",
		},
		[]string{"user"},
	)
)
