// Package snapshot persists opaque state blobs under well-known keys. The
// stores stay authoritative in memory; a snapshot is written after every
// mutation and loaded once at boot.
package snapshot

import "context"

const (
	// KeyPOS holds the single-branch state: catalog, carts, ledger, shifts,
	// customers and accounts.
	KeyPOS = "pos-storage"
	// KeyBranch holds branch records, per-branch stock and transfers.
	KeyBranch = "multi-branch-storage"
)

type Store interface {
	Save(ctx context.Context, key string, payload []byte) error
	// Load returns the stored payload and whether one exists for the key.
	Load(ctx context.Context, key string) ([]byte, bool, error)
}

// Noop keeps everything in memory only. Used when neither DATABASE_URL nor
// REDIS_ADDR is configured.
type Noop struct{}

func (Noop) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

func (Noop) Load(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}
