package pebble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailledger/backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func provision(t *testing.T, store *Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := store.CreateAccount(&domain.Account{ID: id, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}
}

func TestPebbleStore_CreateAndGetMessage(t *testing.T) {
	store := newTestStore(t)
	provision(t, store, "alice", "bob")

	msg := &domain.Message{Title: "hi", Content: "hello", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 100))
	assert.Equal(t, domain.MessageID(0), msg.ID)

	got, err := store.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Title)
	assert.Equal(t, "hello", got.Content)

	sent, err := store.ListSentIDs("alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{0}, sent)

	received, err := store.ListReceivedIDs("bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.MessageID{0}, received)

	account, err := store.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), account.UsedStorage)
}

func TestPebbleStore_CreateMessage_UnprovisionedSender(t *testing.T) {
	store := newTestStore(t)
	provision(t, store, "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now().UTC()}
	err := store.CreateMessage(msg, "ghost", "bob", 100)
	assert.ErrorIs(t, err, domain.ErrAccountNotProvisioned)

	stats, err := store.MessageStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats.Created)
}

func TestPebbleStore_DeleteMessage(t *testing.T) {
	store := newTestStore(t)
	provision(t, store, "alice", "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))
	require.NoError(t, store.DeleteMessage(msg.ID))

	_, err := store.GetMessage(msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.ErrorIs(t, store.DeleteMessage(msg.ID), domain.ErrMessageNotFound)

	stats, err := store.MessageStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(0), stats.Live)
	assert.Equal(t, uint64(1), stats.Deleted)
}

func TestPebbleStore_IndexOrdering(t *testing.T) {
	store := newTestStore(t)
	provision(t, store, "alice", "bob")

	for i := 0; i < 12; i++ {
		msg := &domain.Message{Title: "m", CreatedAt: time.Now().UTC()}
		require.NoError(t, store.CreateMessage(msg, "alice", "bob", 1))
	}

	// Zero-padded keys keep ids in numeric order past single digits
	sent, err := store.ListSentIDs("alice")
	require.NoError(t, err)
	require.Len(t, sent, 12)
	for i, id := range sent {
		assert.Equal(t, domain.MessageID(i), id)
	}
}

func TestPebbleStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	provision(t, store, "alice", "bob")

	msg := &domain.Message{Title: "persisted", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 50))
	require.NoError(t, store.SaveDonation(&domain.DonationEntry{
		Account:     "alice",
		Amount:      domain.AmountFromUint64(7),
		ConfirmedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)

	// Counter resumes, ids stay monotonic
	next := &domain.Message{Title: "after reopen", CreatedAt: time.Now().UTC()}
	require.NoError(t, reopened.CreateMessage(next, "alice", "bob", 50))
	assert.Equal(t, domain.MessageID(1), next.ID)

	entry, err := reopened.GetDonation("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Amount.Cmp(domain.AmountFromUint64(7)))

	account, err := reopened.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), account.UsedStorage)
}

func TestPebbleStore_IsSender(t *testing.T) {
	store := newTestStore(t)
	provision(t, store, "alice", "bob")

	msg := &domain.Message{Title: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateMessage(msg, "alice", "bob", 10))

	isSender, err := store.IsSender("alice", msg.ID)
	require.NoError(t, err)
	assert.True(t, isSender)

	isSender, err = store.IsSender("bob", msg.ID)
	require.NoError(t, err)
	assert.False(t, isSender)
}
