package paywall

import (
	"context"
	"testing"
	"time"

	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() config.PaymentPolicy {
	return config.PaymentPolicy{
		Enabled:         true,
		Network:         "base",
		PayTo:           "0xreceiver",
		Price:           10_000,
		FreeQuota:       3,
		FacilitatorURL:  "https://facilitator.example.com",
		RequestTTL:      30 * time.Minute,
		RetentionWindow: 24 * time.Hour,
	}
}

type fixture struct {
	svc     *Service
	ledger  *ledger.Ledger
	clock   time.Time
	session *ledger.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pol := testPolicy()
	led := ledger.New(ledger.NewMemoryStore(), pol, zap.NewNop())
	svc := NewService(NewMemoryStore(), led, pol, nil, zap.NewNop())

	f := &fixture{svc: svc, ledger: led, clock: time.Now()}
	svc.now = func() time.Time { return f.clock }

	sess, err := led.GetOrCreate(context.Background(), "k", "discord", "u")
	require.NoError(t, err)
	f.session = sess
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestCreateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "0xreceiver", req.PayTo)
	assert.Equal(t, f.clock.Add(30*time.Minute), req.ExpiresAt)

	// Session carries the pending reference.
	sess, err := f.ledger.GetOrCreate(ctx, "k", "discord", "u")
	require.NoError(t, err)
	assert.Equal(t, req.ID, sess.PendingPaymentID)
}

func TestGetUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(ctx, req.ID, "0xtx")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "0xtx", paid.TxRef)

	// Terminal transitions are one-directional.
	_, err = f.svc.MarkPaid(ctx, req.ID, "0xtx2")
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = f.svc.MarkFailed(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestMarkPaidAfterExpiryRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)

	f.advance(31 * time.Minute)

	_, err = f.svc.MarkPaid(ctx, req.ID, "0xtx")
	assert.ErrorIs(t, err, ErrRequestExpired)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestCleanupExpiresAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)
	_, err = f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)

	f.advance(31 * time.Minute)

	expired, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	// Second sweep with nothing new to expire returns 0.
	expired, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestCleanupPurgesTerminalAfterRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, req.ID, "0xtx")
	require.NoError(t, err)

	// Inside the retention window the record survives.
	f.advance(23 * time.Hour)
	_, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, req.ID)
	require.NoError(t, err)

	// Past the retention window it is deleted outright.
	f.advance(2 * time.Hour)
	_, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, req.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestCleanupLeavesFreshPendingAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.session)
	require.NoError(t, err)

	expired, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestJanitorStartStop(t *testing.T) {
	f := newFixture(t)

	j := NewJanitor(f.svc, 10*time.Millisecond, zap.NewNop())
	j.Start(context.Background())

	_, err := f.svc.CreateRequest(context.Background(), f.session)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	j.Stop()

	// Stop joins the loop; a second Stop is harmless.
	j.Stop()
}
