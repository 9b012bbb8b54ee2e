package store

import (
	"context"
	"testing"

	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingQueue_OldestFirstIncludingErrored(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id1, err := s.Add(ctx, "voters", map[string]any{"full_name": "A", "voter_number": "V-1"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "voters", map[string]any{"full_name": "B", "voter_number": "V-2"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "voters", id1, map[string]any{"phone": "555"})
	require.NoError(t, err)

	entries := queueEntries(t, s)
	require.Len(t, entries, 3)

	// confirm the first, fail the second: both leave the pending set in a
	// defined state
	require.NoError(t, s.MarkQueueSynced(ctx, entries[0].ID))
	require.NoError(t, s.MarkQueueError(ctx, entries[1].ID, "server said no"))

	entries = queueEntries(t, s)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusError, entries[0].Status)
	assert.Equal(t, "server said no", entries[0].LastError)
	assert.Equal(t, 1, entries[0].Retries)
	assert.Equal(t, models.StatusPending, entries[1].Status)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestMarkQueueError_IncrementsRetries(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "voters", map[string]any{"full_name": "A", "voter_number": "V-1"})
	require.NoError(t, err)

	entry := queueEntries(t, s)[0]
	require.NoError(t, s.MarkQueueError(ctx, entry.ID, "timeout"))
	require.NoError(t, s.MarkQueueError(ctx, entry.ID, "timeout again"))

	entry = queueEntries(t, s)[0]
	assert.Equal(t, 2, entry.Retries)
	assert.Equal(t, "timeout again", entry.LastError)
}

func TestMarkQueueSynced_ClearsLastError(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "voters", map[string]any{"full_name": "A", "voter_number": "V-1"})
	require.NoError(t, err)

	entry := queueEntries(t, s)[0]
	require.NoError(t, s.MarkQueueError(ctx, entry.ID, "flaky"))
	require.NoError(t, s.MarkQueueSynced(ctx, entry.ID))

	assert.Empty(t, queueEntries(t, s))

	counts, err := s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.StatusSynced])
}

func TestQueueCounts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, num := range []string{"V-1", "V-2", "V-3"} {
		_, err := s.Add(ctx, "voters", map[string]any{"full_name": "N", "voter_number": num})
		require.NoError(t, err)
	}

	entries := queueEntries(t, s)
	require.NoError(t, s.MarkQueueSynced(ctx, entries[0].ID))
	require.NoError(t, s.MarkQueueError(ctx, entries[1].ID, "boom"))

	counts, err := s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.StatusSynced])
	assert.Equal(t, int64(1), counts[models.StatusError])
	assert.Equal(t, int64(1), counts[models.StatusPending])
}
