package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewArtifactStore(store)

	t.Run("text", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "/v/workflowfile", []byte("workflow:\n  name: x\n")))
		text, ok, err := a.GetText(ctx, "/v/workflowfile")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "workflow:\n  name: x\n", text)
	})

	t.Run("binary is never decoded", func(t *testing.T) {
		pkg := []byte{'P', 'K', 0x03, 0x04, 0xff, 0xfe}
		require.NoError(t, store.Put(ctx, "/v/workflow_package", pkg))
		b, ok, err := a.GetBytes(ctx, "/v/workflow_package")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, pkg, b)

		_, _, err = a.GetText(ctx, "/v/workflow_package")
		assert.ErrorIs(t, err, ErrNotText)
	})

	t.Run("missing", func(t *testing.T) {
		text, ok, err := a.GetText(ctx, "/nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, text)
	})

	t.Run("invalid text rejected", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "/bad", []byte{0xff}))
		_, ok, err := a.GetText(ctx, "/bad")
		assert.ErrorIs(t, err, ErrNotText)
		assert.False(t, ok)
	})
}
