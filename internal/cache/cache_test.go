package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSources() []domain.RetrievedPassage {
	return []domain.RetrievedPassage{
		{ChunkID: "c1", Text: "The angle of elevation is measured upward.", Page: 12, Modality: domain.ModalityText, Score: 0.91, Rank: 1},
		{ChunkID: "c2", Text: "tan(theta) = opposite / adjacent", Page: 14, Modality: domain.ModalityFormula, Score: 0.84, Rank: 2},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what is the angle of elevation", Normalize("  What is the angle of elevation?  "))
	assert.Equal(t, "what is the angle of elevation", Normalize("WHAT IS THE ANGLE   OF ELEVATION!!!"))
	assert.Equal(t, "qué es un ángulo", Normalize("¿Qué es un ángulo?"))
}

func TestKeyStableAcrossVariants(t *testing.T) {
	base := Key("What is the angle of elevation?")
	assert.Equal(t, base, Key("what is the angle of elevation"))
	assert.Equal(t, base, Key("What   is the ANGLE of elevation"))
	assert.NotEqual(t, base, Key("What is the angle of depression?"))
}

func TestLookupMissThenHit(t *testing.T) {
	store := openTestStore(t, Options{})
	ctx := context.Background()

	_, hit, err := store.Lookup(ctx, "What is the angle of elevation?")
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = store.Store(ctx, "What is the angle of elevation?", "It is the angle above the horizontal.", sampleSources())
	require.NoError(t, err)

	entry, hit, err := store.Lookup(ctx, "what is the ANGLE of elevation")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "It is the angle above the horizontal.", entry.Answer)
	assert.Equal(t, sampleSources(), entry.Sources)
	assert.Equal(t, 1, entry.HitCount)

	entry, hit, err = store.Lookup(ctx, "What is the angle of elevation?")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, entry.HitCount)
}

func TestStoreOverwritesSameKey(t *testing.T) {
	store := openTestStore(t, Options{})
	ctx := context.Background()

	_, err := store.Store(ctx, "define sine", "old answer", sampleSources())
	require.NoError(t, err)
	_, err = store.Store(ctx, "Define sine!", "new answer", sampleSources()[:1])
	require.NoError(t, err)

	entry, hit, err := store.Lookup(ctx, "define sine")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "new answer", entry.Answer)
	assert.Len(t, entry.Sources, 1)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEvictionDropsLeastRecentlyUsed(t *testing.T) {
	store := openTestStore(t, Options{Capacity: 3})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := store.Store(ctx, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, err)
	}

	// Touch question 1 so question 2 becomes the least recently used.
	_, hit, err := store.Lookup(ctx, "question 1")
	require.NoError(t, err)
	require.True(t, hit)

	_, err = store.Store(ctx, "question 4", "answer 4", nil)
	require.NoError(t, err)

	_, hit, err = store.Lookup(ctx, "question 2")
	require.NoError(t, err)
	assert.False(t, hit, "least recently used entry should be evicted")

	for _, q := range []string{"question 1", "question 3", "question 4"} {
		_, hit, err := store.Lookup(ctx, q)
		require.NoError(t, err)
		assert.True(t, hit, q)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := openTestStore(t, Options{TTL: 30 * time.Millisecond})
	ctx := context.Background()

	_, err := store.Store(ctx, "ephemeral", "gone soon", nil)
	require.NoError(t, err)

	_, hit, err := store.Lookup(ctx, "ephemeral")
	require.NoError(t, err)
	require.True(t, hit)

	time.Sleep(50 * time.Millisecond)

	_, hit, err = store.Lookup(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, hit, "expired entry should be a miss")

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "expired entry should be purged")
}

func TestClearIsIdempotent(t *testing.T) {
	store := openTestStore(t, Options{})
	ctx := context.Background()

	_, err := store.Store(ctx, "q", "a", sampleSources())
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	_, hit, err := store.Lookup(ctx, "q")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = store.Store(ctx, "durable question", "durable answer", sampleSources())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	entry, hit, err := reopened.Lookup(ctx, "durable question")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "durable answer", entry.Answer)
	assert.Equal(t, sampleSources(), entry.Sources)
}
