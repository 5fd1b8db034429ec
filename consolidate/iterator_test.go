package consolidate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIterator_Pages(t *testing.T) {
	store := newStore(t)
	it := NewIDIterator(store, "Leadership", 100, testPolicy)

	var sizes []int
	seen := map[string]bool{}
	err := it.ForEach(context.Background(), func(ids []string) error {
		sizes = append(sizes, len(ids))
		for _, id := range ids {
			assert.False(t, seen[id], "id %s listed twice", id)
			seen[id] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Len(t, seen, 250)
}

func TestIDIterator_StopsOnError(t *testing.T) {
	store := newStore(t)
	it := NewIDIterator(store, "Leadership", 100, testPolicy)

	calls := 0
	boom := errors.New("boom")
	err := it.ForEach(context.Background(), func([]string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIDIterator_Cancelled(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewIDIterator(store, "Leadership", 0, testPolicy).ForEach(ctx, func([]string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIDIterator_EmptyNamespace(t *testing.T) {
	store := newStore(t)
	calls := 0
	err := NewIDIterator(store, "missing", 10, testPolicy).ForEach(context.Background(), func([]string) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}
