package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailledger/backend/internal/domain"
)

func newTestStore(t *testing.T, accounts ...string) *Store {
	t.Helper()
	store := NewStore()
	for _, id := range accounts {
		err := store.CreateAccount(&domain.Account{ID: id, CreatedAt: time.Now()})
		require.NoError(t, err)
	}
	return store
}

func TestMemoryStore_CreateMessage(t *testing.T) {
	store := newTestStore(t, "alice", "bob")

	msg := &domain.Message{Title: "hi", Content: "hello bob", CreatedAt: time.Now()}
	err := store.CreateMessage(msg, "alice", "bob", 100)
	require.NoError(t, err)

	// First message gets id 0
	assert.Equal(t, domain.MessageID(0), msg.ID)

	// Record is readable
	got, err := store.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Title)

	// Both indexes updated
	sent, err := store.ListSentIDs("alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{0}, sent)

	received, err := store.ListReceivedIDs("bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{0}, received)

	// Storage charged to the sender
	account, err := store.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), account.UsedStorage)
}

func TestMemoryStore_CreateMessage_UnprovisionedSender(t *testing.T) {
	store := newTestStore(t, "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now()}
	err := store.CreateMessage(msg, "ghost", "bob", 100)
	assert.ErrorIs(t, err, domain.ErrAccountNotProvisioned)

	// Nothing was written
	stats, err := store.MessageStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats.Created)

	received, err := store.ListReceivedIDs("bob")
	require.NoError(t, err)
	assert.Empty(t, received)
}

func TestMemoryStore_MessageIDsAreMonotonic(t *testing.T) {
	store := newTestStore(t, "alice", "bob")

	for i := 0; i < 3; i++ {
		msg := &domain.Message{Title: "m", CreatedAt: time.Now()}
		require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))
		assert.Equal(t, domain.MessageID(i), msg.ID)
	}

	// Deleting does not free ids for reuse
	require.NoError(t, store.DeleteMessage(2))
	msg := &domain.Message{Title: "m", CreatedAt: time.Now()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))
	assert.Equal(t, domain.MessageID(3), msg.ID)
}

func TestMemoryStore_DeleteMessage(t *testing.T) {
	store := newTestStore(t, "alice", "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))

	require.NoError(t, store.DeleteMessage(msg.ID))

	_, err := store.GetMessage(msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// Deleting a missing record reports not found
	assert.ErrorIs(t, store.DeleteMessage(msg.ID), domain.ErrMessageNotFound)

	// Index still carries the id; readers are expected to skip it
	sent, err := store.ListSentIDs("alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{msg.ID}, sent)
}

func TestMemoryStore_MessageStats(t *testing.T) {
	store := newTestStore(t, "alice", "bob")

	for i := 0; i < 3; i++ {
		msg := &domain.Message{Title: "m", CreatedAt: time.Now()}
		require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))
	}
	require.NoError(t, store.DeleteMessage(1))

	stats, err := store.MessageStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Created)
	assert.Equal(t, uint64(2), stats.Live)
	assert.Equal(t, uint64(1), stats.Deleted)
}

func TestMemoryStore_IsSender(t *testing.T) {
	store := newTestStore(t, "alice", "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))

	isSender, err := store.IsSender("alice", msg.ID)
	require.NoError(t, err)
	assert.True(t, isSender)

	isSender, err = store.IsSender("bob", msg.ID)
	require.NoError(t, err)
	assert.False(t, isSender)

	isSender, err = store.IsSender("unknown", msg.ID)
	require.NoError(t, err)
	assert.False(t, isSender)
}

func TestMemoryStore_AccountOperations(t *testing.T) {
	store := NewStore()

	account := &domain.Account{ID: "alice", SecretHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, store.CreateAccount(account))

	// Duplicate provisioning is rejected
	assert.ErrorIs(t, store.CreateAccount(account), domain.ErrAccountExists)

	got, err := store.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", got.SecretHash)

	_, err = store.GetAccount("missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemoryStore_DonationOperations(t *testing.T) {
	store := NewStore()

	_, err := store.GetDonation("alice")
	assert.ErrorIs(t, err, domain.ErrDonationNotFound)

	entry := &domain.DonationEntry{
		Account:     "alice",
		Amount:      domain.AmountFromUint64(500),
		ConfirmedAt: time.Now(),
	}
	require.NoError(t, store.SaveDonation(entry))

	got, err := store.GetDonation("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Amount.Cmp(domain.AmountFromUint64(500)))

	// A later donation overwrites the previous entry
	entry.Amount = domain.AmountFromUint64(900)
	require.NoError(t, store.SaveDonation(entry))

	got, err = store.GetDonation("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Amount.Cmp(domain.AmountFromUint64(900)))
}
