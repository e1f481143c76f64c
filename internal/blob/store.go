// Package blob provides key-addressed JSON blob storage. Production deployments
// talk to the hosted blob service over HTTP; local deployments and tests keep
// blobs in a SQLite file. Reads fail open: a missing key yields a nil payload,
// not an error, and callers must treat nil as "not found". Writes fail loud
// when no write credential is configured. There is no versioning and no
// optimistic concurrency; concurrent writers to one key are last-write-wins.
package blob

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrMissingWriteCredential indicates a write was attempted without a configured credential.
	ErrMissingWriteCredential = errors.New("blob: write credential required")
	// ErrInvalidKey indicates an empty or malformed blob key.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Page is one page of a prefix listing.
type Page struct {
	Keys   []string
	Cursor string
}

// Store abstracts the key-addressed blob service.
type Store interface {
	// Read returns the blob payload, or nil when the key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write stores the payload under key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes the blob; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns up to limit keys under prefix, resuming from cursor.
	// An empty returned cursor means the listing is exhausted.
	List(ctx context.Context, prefix, cursor string, limit int) (Page, error)
}

// ReadJSON reads and unmarshals the blob at key into value. The returned
// bool reports whether the key existed.
func ReadJSON(ctx context.Context, store Store, key string, value any) (bool, error) {
	data, err := store.Read(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

// WriteJSON marshals value and stores it under key.
func WriteJSON(ctx context.Context, store Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Write(ctx, key, data)
}
