package client

import (
	"context"

	"github.com/google/uuid"

	"lotmarket/internal/client/storage"
)

const keyInstallID = "install_id"

// EnsureInstallID returns this installation's stable identifier,
// creating and persisting one on first run. It is sent to the server as
// client metadata, never as a credential.
func EnsureInstallID(ctx context.Context, store storage.Store) (string, error) {
	raw, err := store.Get(ctx, keyInstallID)
	if err != nil {
		return "", err
	}
	if raw != nil {
		return string(raw), nil
	}

	id := uuid.NewString()
	if err := store.Set(ctx, keyInstallID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
