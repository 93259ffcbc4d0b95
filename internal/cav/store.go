package cav

import "context"

// BucketStore is the keyed durable store holding the application's named data
// buckets. The audit log and the backup list are persisted through the same
// interface under AuditLogBucket and BackupsBucket.
//
// Values are opaque serialized JSON documents; the store never interprets them.
type BucketStore interface {
	// Get returns the serialized contents of a bucket. ok is false when the
	// bucket has never been written (or was deleted).
	Get(ctx context.Context, name string) (data []byte, ok bool, err error)

	// Set replaces the contents of a bucket.
	Set(ctx context.Context, name string, data []byte) error

	// Delete removes a bucket. Deleting an absent bucket is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close() error
}
