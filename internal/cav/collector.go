package cav

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// collectConcurrency bounds parallel bucket reads.
const collectConcurrency = 4

// identityFields are the only authIdentity fields captured in a backup.
var identityFields = map[string]bool{
	"userId":       true,
	"userName":     true,
	"email":        true,
	"role":         true,
	"loginAt":      true,
	"lastActivity": true,
	"timestamp":    true,
}

// Collector reads registered buckets from the store and assembles backup
// payloads.
type Collector struct {
	store  BucketStore
	logger Logger
}

// NewCollector creates a Collector reading from store.
func NewCollector(store BucketStore, logger Logger) *Collector {
	return &Collector{store: store, logger: logger}
}

// Collect reads every registered bucket accepted by include. Absent and empty
// buckets are omitted. It returns the payload and the sorted names of the
// buckets it contains. A nil include accepts every bucket.
func (c *Collector) Collect(ctx context.Context, include func(name string) bool) (map[string]json.RawMessage, []string, error) {
	var (
		mu      sync.Mutex
		payload = map[string]json.RawMessage{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(collectConcurrency)
	for _, name := range registry {
		if include != nil && !include(name) {
			continue
		}
		g.Go(func() error {
			data, err := c.readBucket(gctx, name)
			if err != nil || data == nil {
				return err
			}
			mu.Lock()
			payload[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	names := sortedKeys(payload)
	c.logger.Debug("buckets collected", "count", len(names))
	return payload, names, nil
}

// readBucket returns a bucket's contents, or nil if it holds no data.
func (c *Collector) readBucket(ctx context.Context, name string) (json.RawMessage, error) {
	data, ok, err := c.store.Get(ctx, name)
	if err != nil {
		return nil, &StorageError{Op: "get", Bucket: name, Err: err}
	}
	if !ok || isEmptyBucket(data) {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("bucket %q does not contain valid JSON", name)
	}
	if name == BucketAuthIdentity {
		return sanitizeIdentity(data)
	}
	return append(json.RawMessage(nil), data...), nil
}

// sanitizeIdentity keeps only identity and timestamp fields, dropping tokens
// and other session secrets. Lists of identities are sanitized element-wise.
func sanitizeIdentity(data []byte) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", BucketAuthIdentity, err)
	}

	var cleaned any
	switch val := v.(type) {
	case map[string]any:
		cleaned = filterIdentity(val)
	case []any:
		list := make([]any, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				list = append(list, filterIdentity(m))
			}
		}
		cleaned = list
	default:
		return nil, nil
	}

	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", BucketAuthIdentity, err)
	}
	if isEmptyBucket(out) {
		return nil, nil
	}
	return out, nil
}

func filterIdentity(m map[string]any) map[string]any {
	out := make(map[string]any, len(identityFields))
	for k, v := range m {
		if identityFields[k] {
			out[k] = v
		}
	}
	return out
}
