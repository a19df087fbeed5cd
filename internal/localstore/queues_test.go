package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailbase/possync/internal/models"
)

func TestAddQueueOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueAdd(ctx, models.EntityProduct, "local-b", categoryPayload(t, "local-b", "Second"), 20))
	require.NoError(t, store.EnqueueAdd(ctx, models.EntityProduct, "local-a", categoryPayload(t, "local-a", "First"), 10))

	adds, err := store.ListAdds(ctx, models.EntityProduct)
	require.NoError(t, err)
	require.Len(t, adds, 2)
	assert.Equal(t, "local-a", adds[0].LocalID, "oldest first")
	assert.Equal(t, "local-b", adds[1].LocalID)
}

func TestUpdateAddPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueAdd(ctx, models.EntityCategory, "local-1", categoryPayload(t, "local-1", "Old"), 10))

	ok, err := store.UpdateAddPayload(ctx, models.EntityCategory, "local-1", categoryPayload(t, "local-1", "New"))
	require.NoError(t, err)
	assert.True(t, ok)

	adds, err := store.ListAdds(ctx, models.EntityCategory)
	require.NoError(t, err)
	require.Len(t, adds, 1)
	assert.Contains(t, string(adds[0].Payload), "New")
	assert.Equal(t, int64(10), adds[0].CreatedAt, "rewrite keeps the original creation time")

	ok, err = store.UpdateAddPayload(ctx, models.EntityCategory, "local-missing", categoryPayload(t, "x", "x"))
	require.NoError(t, err)
	assert.False(t, ok, "rewriting a missing record reports false")
}

func TestMarkAddFailureIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueAdd(ctx, models.EntityCategory, "local-1", categoryPayload(t, "local-1", "A"), 10))

	count, err := store.MarkAddFailure(ctx, models.EntityCategory, "local-1", "timeout", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.MarkAddFailure(ctx, models.EntityCategory, "local-1", "timeout again", 200)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	adds, err := store.ListAdds(ctx, models.EntityCategory)
	require.NoError(t, err)
	require.Len(t, adds, 1)
	assert.Equal(t, 2, adds[0].SyncRetryCount)
	assert.Equal(t, "timeout again", adds[0].SyncError)
	assert.Equal(t, int64(200), adds[0].LastSyncAttempt)
}

func TestCompleteAddIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueAdd(ctx, models.EntityCategory, "local-1", categoryPayload(t, "local-1", "Drinks"), 10))

	require.NoError(t, store.CompleteAdd(ctx, models.EntityCategory, "local-1", "srv-9", categoryPayload(t, "srv-9", "Drinks"), 50, 60))

	// All three effects must be visible together.
	adds, err := store.ListAdds(ctx, models.EntityCategory)
	require.NoError(t, err)
	assert.Empty(t, adds, "queue entry cleared")

	row, err := store.GetCanonical(ctx, models.EntityCategory, "srv-9")
	require.NoError(t, err)
	require.NotNil(t, row, "canonical row cached")

	tr, err := store.TranslationFor(ctx, models.EntityCategory, "local-1")
	require.NoError(t, err)
	require.NotNil(t, tr, "translation recorded")
	assert.Equal(t, "srv-9", tr.ServerID)
	assert.Equal(t, int64(60), tr.SyncedAt)
}

func TestEnqueueUpdateReplacesAndResetsRetries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueUpdate(ctx, models.EntityProduct, "srv-1", categoryPayload(t, "srv-1", "First"), 10))
	_, err := store.MarkUpdateFailure(ctx, models.EntityProduct, "srv-1", "boom", 20)
	require.NoError(t, err)

	// A newer local edit supersedes the queued one and its failure history.
	require.NoError(t, store.EnqueueUpdate(ctx, models.EntityProduct, "srv-1", categoryPayload(t, "srv-1", "Second"), 30))

	updates, err := store.ListUpdates(ctx, models.EntityProduct)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Contains(t, string(updates[0].Payload), "Second")
	assert.Zero(t, updates[0].SyncRetryCount)
	assert.Empty(t, updates[0].SyncError)
}

func TestEnqueueDeleteClearsPendingUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueUpdate(ctx, models.EntityProduct, "srv-1", categoryPayload(t, "srv-1", "Edited"), 10))
	require.NoError(t, store.EnqueueDelete(ctx, models.EntityProduct, "srv-1", "cashier", 20))

	updates, err := store.ListUpdates(ctx, models.EntityProduct)
	require.NoError(t, err)
	assert.Empty(t, updates, "pending update for a deleted record is wasted work")

	tombs, err := store.ListDeletes(ctx, models.EntityProduct)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, "cashier", tombs[0].Actor)
}

func TestEnqueueDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueDelete(ctx, models.EntityProduct, "srv-1", "a", 10))
	require.NoError(t, store.EnqueueDelete(ctx, models.EntityProduct, "srv-1", "b", 20))

	tombs, err := store.ListDeletes(ctx, models.EntityProduct)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, "a", tombs[0].Actor, "first tombstone wins")
}

func TestCompleteDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CompleteAdd(ctx, models.EntityCategory, "local-1", "srv-1", categoryPayload(t, "srv-1", "Gone"), 1, 1))
	require.NoError(t, store.EnqueueDelete(ctx, models.EntityCategory, "srv-1", "", 10))

	require.NoError(t, store.CompleteDelete(ctx, models.EntityCategory, "srv-1"))

	row, err := store.GetCanonical(ctx, models.EntityCategory, "srv-1")
	require.NoError(t, err)
	assert.Nil(t, row)

	tombs, err := store.ListDeletes(ctx, models.EntityCategory)
	require.NoError(t, err)
	assert.Empty(t, tombs)

	tr, err := store.TranslationFor(ctx, models.EntityCategory, "local-1")
	require.NoError(t, err)
	assert.Nil(t, tr, "translation pointing at the deleted server id is cleared")
}

func TestEvictExhausted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueAdd(ctx, models.EntityCategory, "local-dead", categoryPayload(t, "local-dead", "A"), 1))
	require.NoError(t, store.EnqueueAdd(ctx, models.EntityCategory, "local-alive", categoryPayload(t, "local-alive", "B"), 2))
	require.NoError(t, store.EnqueueUpdate(ctx, models.EntityCategory, "srv-dead", categoryPayload(t, "srv-dead", "C"), 3))
	require.NoError(t, store.EnqueueDelete(ctx, models.EntityCategory, "srv-tomb", "", 4))

	for i := 0; i < 5; i++ {
		_, err := store.MarkAddFailure(ctx, models.EntityCategory, "local-dead", "err", int64(i))
		require.NoError(t, err)
		_, err = store.MarkUpdateFailure(ctx, models.EntityCategory, "srv-dead", "err", int64(i))
		require.NoError(t, err)
		_, err = store.MarkDeleteFailure(ctx, models.EntityCategory, "srv-tomb", "err", int64(i))
		require.NoError(t, err)
	}
	_, err := store.MarkAddFailure(ctx, models.EntityCategory, "local-alive", "one-off", 1)
	require.NoError(t, err)

	evicted, err := store.EvictExhausted(ctx, models.EntityCategory, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	adds, err := store.ListAdds(ctx, models.EntityCategory)
	require.NoError(t, err)
	require.Len(t, adds, 1)
	assert.Equal(t, "local-alive", adds[0].LocalID, "record under the ceiling survives")

	updates, err := store.ListUpdates(ctx, models.EntityCategory)
	require.NoError(t, err)
	assert.Empty(t, updates)

	tombs, err := store.ListDeletes(ctx, models.EntityCategory)
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestTranslations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr, err := store.TranslationFor(ctx, models.EntityCategory, "local-none")
	require.NoError(t, err)
	assert.Nil(t, tr)

	require.NoError(t, store.CompleteAdd(ctx, models.EntityCategory, "local-1", "srv-1", categoryPayload(t, "srv-1", "A"), 1, 5))
	require.NoError(t, store.CompleteAdd(ctx, models.EntityCategory, "local-2", "srv-2", categoryPayload(t, "srv-2", "B"), 2, 6))

	all, err := store.ListTranslations(ctx, models.EntityCategory)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "local-1", all[0].LocalID)
	assert.Equal(t, "srv-2", all[1].ServerID)
}
