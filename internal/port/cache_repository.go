package port

import "context"

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key so the guarded action can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

// KeyValueStore is the durable storage that carries cart state across activations.
// A missing key is reported as ok == false, not as an error.
type KeyValueStore interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
