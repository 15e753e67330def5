package allowance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	allowance OnChainAllowance
	approved  bool
	err       error
}

func (f *fakeReader) Allowance(ctx context.Context, owner string) (*OnChainAllowance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a := f.allowance
	return &a, nil
}

func (f *fakeReader) TokenApproved(ctx context.Context, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.approved, nil
}

func testPolicy() config.PaymentPolicy {
	return config.PaymentPolicy{
		Enabled:             true,
		MaxTxAmount:         money.Micros(1_000_000), // $1.00
		LowBalanceThreshold: money.Micros(50_000),    // $0.05
	}
}

func newEngine(t *testing.T, chain Reader) *Engine {
	t.Helper()
	return NewEngine(NewMemoryStore(), chain, testPolicy(), nil, zap.NewNop())
}

func TestRegisterAndCheck(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)

	err := eng.Register(ctx, "alice", "0xAbC", money.Micros(500_000), time.Now().Add(time.Hour), "sig")
	require.NoError(t, err)

	res, err := eng.Check(ctx, "alice", "0xAbC", money.Micros(10_000))
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.False(t, res.NeedsReauthorization)
	assert.Equal(t, money.Micros(500_000), res.RemainingBalance)
}

func TestCheckMissingAuthorization(t *testing.T) {
	eng := newEngine(t, nil)

	res, err := eng.Check(context.Background(), "nobody", "0x1", money.Micros(1))
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.True(t, res.NeedsReauthorization)
	assert.Contains(t, res.Reason, "no authorization")
}

func TestCheckExpiredAuthorization(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(100_000), time.Now().Add(time.Hour), "sig"))

	eng.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := eng.Check(ctx, "alice", "0x1", money.Micros(1))
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.True(t, res.NeedsReauthorization)
	assert.Contains(t, res.Reason, "expired")
}

func TestCheckInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(5_000), time.Now().Add(time.Hour), "sig"))

	res, err := eng.Check(ctx, "alice", "0x1", money.Micros(10_000))
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.True(t, res.NeedsReauthorization)
	assert.Contains(t, res.Reason, "insufficient")
}

func TestCheckOnChainAllowanceShortfall(t *testing.T) {
	ctx := context.Background()
	chain := &fakeReader{
		allowance: OnChainAllowance{Amount: money.Micros(2_000)},
		approved:  true,
	}
	eng := newEngine(t, chain)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(100_000), time.Now().Add(time.Hour), "sig"))

	res, err := eng.Check(ctx, "alice", "0x1", money.Micros(10_000))
	require.NoError(t, err)
	assert.False(t, res.Authorized)
	assert.True(t, res.NeedsReauthorization)
	assert.Contains(t, res.Reason, "on-chain")
}

func TestCheckOnChainReaderUnavailable(t *testing.T) {
	ctx := context.Background()
	chain := &fakeReader{err: errors.New("indexer down")}
	eng := newEngine(t, chain)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(100_000), time.Now().Add(time.Hour), "sig"))

	// Fail closed: an unreadable chain means no charge.
	res, err := eng.Check(ctx, "alice", "0x1", money.Micros(10_000))
	require.NoError(t, err)
	assert.False(t, res.Authorized)
}

func TestLowBalanceFlagsReauthorization(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(60_000), time.Now().Add(time.Hour), "sig"))

	// 60_000 - 20_000 = 40_000 < threshold 50_000: authorized, but prompt
	// for renewal.
	res, err := eng.Check(ctx, "alice", "0x1", money.Micros(20_000))
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.True(t, res.NeedsReauthorization)
}

func TestProcessPaymentDebits(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(500_000), time.Now().Add(time.Hour), "sig"))

	res, err := eng.ProcessPayment(ctx, ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(100_000)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SettlementRef)
	assert.Equal(t, money.Micros(400_000), res.RemainingBalance)

	stats, err := eng.Stats(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.Equal(t, "$0.10", stats.Spent)
	assert.Equal(t, "$0.40", stats.Remaining)
	assert.Equal(t, StateActive, stats.State)
}

func TestProcessPaymentCeiling(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(10_000_000), time.Now().Add(time.Hour), "sig"))

	res, err := eng.ProcessPayment(ctx, ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(2_000_000)})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "ceiling")

	// The rejected charge must not touch the balance.
	stats, err := eng.Stats(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.Equal(t, "$0.00", stats.Spent)
}

func TestProcessPaymentNonPositiveAmount(t *testing.T) {
	eng := newEngine(t, nil)

	res, err := eng.ProcessPayment(context.Background(), ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: 0})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestConcurrentChargesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(10), time.Now().Add(time.Hour), "sig"))

	results := make([]*ChargeResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := eng.ProcessPayment(ctx, ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(6)})
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, res := range results {
		if res.Success {
			successes++
		} else {
			assert.Contains(t, res.Reason, "insufficient")
		}
	}
	assert.Equal(t, 1, successes)

	stats, err := eng.Stats(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.Equal(t, money.Micros(6).String(), stats.Spent)
}

func TestQueueDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(10), time.Now().Add(time.Hour), "sig"))

	eng.QueuePayment(ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(6)})
	eng.QueuePayment(ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(6)})
	eng.QueuePayment(ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(4)})
	assert.Equal(t, 3, eng.PendingPayments())

	results := eng.ProcessPendingPayments(ctx)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, 0, eng.PendingPayments())
}

func TestRegisterReplacesAndResetsSpent(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(100_000), time.Now().Add(time.Hour), "sig"))

	_, err := eng.ProcessPayment(ctx, ChargeRequest{UserID: "alice", WalletAddress: "0x1", Amount: money.Micros(40_000)})
	require.NoError(t, err)

	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(200_000), time.Now().Add(time.Hour), "sig2"))

	stats, err := eng.Stats(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.Equal(t, "$0.00", stats.Spent)
	assert.Equal(t, "$0.20", stats.Remaining)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(ctx, "alice", "0x1", money.Micros(100_000), time.Now().Add(time.Hour), "sig"))

	existed, err := eng.Revoke(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = eng.Revoke(ctx, "alice", "0x1")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = eng.Stats(ctx, "alice", "0x1")
	assert.ErrorIs(t, err, ErrAuthorizationNotFound)
}

func TestApprovalPlanFreshWallet(t *testing.T) {
	chain := &fakeReader{}
	eng := newEngine(t, chain)

	plan, err := eng.ApprovalPlan(context.Background(), "0x1", money.Micros(100_000))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, StepTokenApproval, plan[0].Type)
	assert.Equal(t, StepAllowanceSignature, plan[1].Type)
}

func TestApprovalPlanResumesAtSignature(t *testing.T) {
	chain := &fakeReader{approved: true}
	eng := newEngine(t, chain)

	plan, err := eng.ApprovalPlan(context.Background(), "0x1", money.Micros(100_000))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, StepAllowanceSignature, plan[0].Type)
}

func TestApprovalPlanReadyWallet(t *testing.T) {
	chain := &fakeReader{
		approved: true,
		allowance: OnChainAllowance{
			Amount:    money.Micros(500_000),
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	eng := newEngine(t, chain)

	plan, err := eng.ApprovalPlan(context.Background(), "0x1", money.Micros(100_000))
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestApprovalPlanLapsedAllowance(t *testing.T) {
	chain := &fakeReader{
		approved: true,
		allowance: OnChainAllowance{
			Amount:    money.Micros(500_000),
			ExpiresAt: time.Now().Add(-time.Minute),
		},
	}
	eng := newEngine(t, chain)

	plan, err := eng.ApprovalPlan(context.Background(), "0x1", money.Micros(100_000))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, StepAllowanceSignature, plan[0].Type)
}

func TestStateTransitions(t *testing.T) {
	now := time.Now()
	auth := &Authorization{
		Authorized: money.Micros(100),
		Spent:      0,
		ExpiresAt:  now.Add(time.Hour),
	}

	assert.Equal(t, StateActive, auth.StateAt(now))

	auth.Spent = 100
	assert.Equal(t, StateExhausted, auth.StateAt(now))

	auth.Spent = 0
	assert.Equal(t, StateExpired, auth.StateAt(now.Add(2*time.Hour)))
}
