package repository

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrNotText is returned when a text artifact holds invalid UTF-8.
var ErrNotText = errors.New("artifact is not valid text")

// ArtifactStore reads single per-version blobs. Text artifacts are
// validated as UTF-8; binary artifacts are returned untouched. Artifacts
// are written only by the registration transaction.
type ArtifactStore struct {
	store Store
}

// NewArtifactStore creates a new ArtifactStore.
func NewArtifactStore(store Store) *ArtifactStore {
	return &ArtifactStore{store: store}
}

// GetText returns the text stored under key.
func (a *ArtifactStore) GetText(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := a.store.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	if !utf8.Valid(v) {
		return "", false, fmt.Errorf("%w: %q", ErrNotText, key)
	}
	return string(v), true, nil
}

// GetBytes returns the bytes stored under key.
func (a *ArtifactStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	return a.store.Get(ctx, key)
}
