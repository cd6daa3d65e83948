package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailledger/backend/internal/domain"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/notify"
	"mailledger/backend/internal/pool"
	"mailledger/backend/internal/storage/memory"
)

// Prometheus collectors register globally, one instance per test binary.
var testMetrics = monitoring.NewMetrics()

// fakeNotifier lets each test choose the outcome of the external call.
type fakeNotifier struct {
	err      error
	payloads []notify.Payload
}

func (n *fakeNotifier) Notify(_ context.Context, p notify.Payload) error {
	n.payloads = append(n.payloads, p)
	return n.err
}

// fakeTransferrer records payment transfers.
type fakeTransferrer struct {
	err       error
	transfers []string
}

func (f *fakeTransferrer) Transfer(_ context.Context, to string, amount domain.Amount) error {
	f.transfers = append(f.transfers, to+":"+amount.String())
	return f.err
}

type testEnv struct {
	store    *memory.Store
	notifier *fakeNotifier
	payments *fakeTransferrer
	mail     *MailService
}

func newTestEnv(t *testing.T, accounts ...string) *testEnv {
	t.Helper()

	store := memory.NewStore()
	for _, id := range accounts {
		require.NoError(t, store.CreateAccount(&domain.Account{ID: id, CreatedAt: time.Now().UTC()}))
	}

	workers := pool.NewWorkerPool(2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	workers.Start(ctx)
	t.Cleanup(func() {
		cancel()
		workers.Stop()
	})

	notifier := &fakeNotifier{}
	orch := notify.NewOrchestrator(notifier, store, workers, nil, zap.NewNop())
	payments := &fakeTransferrer{}

	mail := NewMailService(store, orch, payments, testMetrics, 100, "treasury", zap.NewNop())

	return &testEnv{store: store, notifier: notifier, payments: payments, mail: mail}
}

func TestMailService_Send(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	msg, call, err := env.mail.Send(ctx, "alice", SendMessageInput{
		Receiver: "bob",
		Title:    "hello",
		Content:  "first message",
	})
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, domain.MessageID(0), msg.ID)

	require.NoError(t, call.Wait(ctx))

	// Notification carried the message content
	require.Len(t, env.notifier.payloads, 1)
	assert.Equal(t, "bob", env.notifier.payloads[0].Receiver)
	assert.Equal(t, "hello", env.notifier.payloads[0].Title)

	// No amount, no payment transfer
	assert.Empty(t, env.payments.transfers)

	// Storage charged to the sender
	account, err := env.store.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), account.UsedStorage)
}

func TestMailService_Send_ValidatesInput(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	_, _, err := env.mail.Send(ctx, "alice", SendMessageInput{Receiver: "B!", Title: "hi"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccountID)

	_, _, err = env.mail.Send(ctx, "alice", SendMessageInput{Receiver: "bob", Title: "  "})
	assert.ErrorIs(t, err, domain.ErrTitleEmpty)
}

func TestMailService_Send_UnprovisionedSender(t *testing.T) {
	env := newTestEnv(t, "bob")
	ctx := context.Background()

	_, _, err := env.mail.Send(ctx, "ghost", SendMessageInput{Receiver: "bob", Title: "hi"})
	assert.ErrorIs(t, err, domain.ErrAccountNotProvisioned)

	// No notification issued for a failed local write
	assert.Empty(t, env.notifier.payloads)
}

func TestMailService_Send_WithAmountTransfersPayment(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	amount := domain.AmountFromUint64(2500)
	_, call, err := env.mail.Send(ctx, "alice", SendMessageInput{
		Receiver: "bob",
		Title:    "tip",
		Amount:   &amount,
	})
	require.NoError(t, err)
	require.NoError(t, call.Wait(ctx))

	assert.Equal(t, []string{"treasury:2500"}, env.payments.transfers)
}

func TestMailService_Send_PaymentFailureDoesNotBlockMessage(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	env.payments.err = errors.New("gateway unreachable")
	ctx := context.Background()

	amount := domain.AmountFromUint64(2500)
	msg, call, err := env.mail.Send(ctx, "alice", SendMessageInput{
		Receiver: "bob",
		Title:    "tip",
		Amount:   &amount,
	})
	require.NoError(t, err)
	require.NoError(t, call.Wait(ctx))

	// Message exists despite the failed transfer
	_, err = env.store.GetMessage(msg.ID)
	assert.NoError(t, err)
}

func TestMailService_Delete(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	msg, call, err := env.mail.Send(ctx, "alice", SendMessageInput{Receiver: "bob", Title: "hi"})
	require.NoError(t, err)
	require.NoError(t, call.Wait(ctx))

	t.Run("receiver cannot delete", func(t *testing.T) {
		err := env.mail.Delete(ctx, msg.ID, "bob")
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("sender deletes own message", func(t *testing.T) {
		require.NoError(t, env.mail.Delete(ctx, msg.ID, "alice"))
		_, err := env.mail.Get(ctx, msg.ID)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})

	t.Run("deleting a missing message reports not found", func(t *testing.T) {
		err := env.mail.Delete(ctx, domain.MessageID(99), "alice")
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestMailService_ListsSkipDeletedMessages(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	var ids []domain.MessageID
	for _, title := range []string{"one", "two", "three"} {
		msg, call, err := env.mail.Send(ctx, "alice", SendMessageInput{Receiver: "bob", Title: title})
		require.NoError(t, err)
		require.NoError(t, call.Wait(ctx))
		ids = append(ids, msg.ID)
	}

	require.NoError(t, env.mail.Delete(ctx, ids[1], "alice"))

	sent, err := env.mail.ListSent(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "one", sent[0].Title)
	assert.Equal(t, "three", sent[1].Title)

	received, err := env.mail.ListReceived(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, received, 2)

	// Counts always agree with list lengths
	count, err := env.mail.CountSent(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = env.mail.CountReceived(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMailService_ListsForUnknownAccountAreEmpty(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := context.Background()

	sent, err := env.mail.ListSent(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, sent)

	count, err := env.mail.CountReceived(ctx, "stranger")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMailService_Stats(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()

	var ids []domain.MessageID
	for i := 0; i < 3; i++ {
		msg, call, err := env.mail.Send(ctx, "alice", SendMessageInput{Receiver: "bob", Title: "m"})
		require.NoError(t, err)
		require.NoError(t, call.Wait(ctx))
		ids = append(ids, msg.ID)
	}
	require.NoError(t, env.mail.Delete(ctx, ids[0], "alice"))

	stats, err := env.mail.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Created)
	assert.Equal(t, uint64(2), stats.Live)
	assert.Equal(t, uint64(1), stats.Deleted)
}
