package cav

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DefaultAuditCapacity is the number of events retained when no capacity is
// configured.
const DefaultAuditCapacity = 10000

// AuditLog is the bounded, newest-first audit event log. It is persisted as a
// single JSON document under AuditLogBucket and held in memory between writes.
//
// Appends are serialized by a write lock held across the whole
// read-modify-persist sequence; readers copy under the read lock.
type AuditLog struct {
	mu     sync.RWMutex
	events []AuditEvent

	store      BucketStore
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	capacity   int
	loc        *time.Location
	thresholds Thresholds
	listeners  *listenerRegistry
}

// AuditLogOption configures an AuditLog.
type AuditLogOption func(*AuditLog)

// WithCapacity bounds the number of retained events. Values below one are
// ignored.
func WithCapacity(n int) AuditLogOption {
	return func(l *AuditLog) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithLocation sets the time zone used for hour-of-day bucketing and
// off-hours detection.
func WithLocation(loc *time.Location) AuditLogOption {
	return func(l *AuditLog) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithThresholds overrides the anomaly detection thresholds.
func WithThresholds(t Thresholds) AuditLogOption {
	return func(l *AuditLog) {
		l.thresholds = t.withDefaults()
	}
}

// NewAuditLog creates an empty AuditLog. Call Load to read persisted events.
func NewAuditLog(store BucketStore, logger Logger, clock Clock, idgen IDGenerator, opts ...AuditLogOption) *AuditLog {
	l := &AuditLog{
		store:      store,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		capacity:   DefaultAuditCapacity,
		loc:        time.Local,
		thresholds: DefaultThresholds(),
		listeners:  newListenerRegistry(logger),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capacity returns the maximum number of retained events.
func (l *AuditLog) Capacity() int { return l.capacity }

// Load replaces the in-memory log with the persisted one. A missing bucket
// yields an empty log. Persisted logs longer than the capacity are truncated.
func (l *AuditLog) Load(ctx context.Context) error {
	data, ok, err := l.store.Get(ctx, AuditLogBucket)
	if err != nil {
		return &StorageError{Op: "get", Bucket: AuditLogBucket, Err: err}
	}

	var events []AuditEvent
	if ok && !isEmptyBucket(data) {
		if err := json.Unmarshal(data, &events); err != nil {
			return fmt.Errorf("decoding audit log: %w", err)
		}
	}
	if len(events) > l.capacity {
		events = events[:l.capacity]
	}

	l.mu.Lock()
	l.events = events
	l.mu.Unlock()

	l.logger.Debug("audit log loaded", "events", len(events))
	return nil
}

// Append records an event. EventType is required; Category and Severity are
// always derived from it. ID, Timestamp, actor and session are filled when
// absent, the actor and session from ctx (see WithActor) or the anonymous
// sentinel.
//
// Only a missing EventType is reported as an error. A persistence failure is
// logged and captured as a SYSTEM_ERROR event; the appended event is still
// returned and retained in memory.
func (l *AuditLog) Append(ctx context.Context, ev AuditEvent) (AuditEvent, error) {
	if ev.EventType == "" {
		err := NewValidationError("eventType", "is required")
		l.logger.Warn("audit event rejected", "error", err)
		return AuditEvent{}, err
	}

	l.mu.Lock()
	stored := l.prepareLocked(ctx, ev)
	l.insertLocked(stored)
	var sysErr *AuditEvent
	if err := l.persistLocked(ctx); err != nil {
		sysErr = l.recordPersistFailureLocked(ctx, stored, err)
	}
	l.mu.Unlock()

	l.listeners.notify(ctx, stored.clone())
	if sysErr != nil {
		l.listeners.notify(ctx, sysErr.clone())
	}
	return stored.clone(), nil
}

// prepareLocked fills the derived and defaulted fields of ev and links it to
// the newest retained event.
func (l *AuditLog) prepareLocked(ctx context.Context, ev AuditEvent) AuditEvent {
	info := actorFrom(ctx)

	ev = ev.clone()
	ev.Category = CategoryOf(ev.EventType)
	ev.Severity = SeverityOf(ev.EventType)
	if ev.ID == "" {
		ev.ID = l.idgen.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.clock.Now()
	}
	if len(l.events) > 0 && ev.Timestamp.Before(l.events[0].Timestamp) {
		ev.Timestamp = l.events[0].Timestamp
	}
	if ev.Actor.IsZero() {
		ev.Actor = info.actor
		if ev.Actor.IsZero() {
			ev.Actor = AnonymousActor
		}
	}
	if ev.SessionID == "" {
		ev.SessionID = info.sessionID
	}
	if ev.Context == (EventContext{}) {
		ev.Context = info.evctx
	}

	ev.PrevHash = genesisHash
	if len(l.events) > 0 {
		ev.PrevHash = l.events[0].Hash
	}
	ev.Hash = computeEventHash(ev.PrevHash, ev)
	return ev
}

// insertLocked prepends ev and evicts the oldest events beyond capacity.
func (l *AuditLog) insertLocked(ev AuditEvent) {
	l.events = append(l.events, AuditEvent{})
	copy(l.events[1:], l.events)
	l.events[0] = ev
	if len(l.events) > l.capacity {
		clear(l.events[l.capacity:])
		l.events = l.events[:l.capacity]
	}
}

func (l *AuditLog) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(l.events)
	if err != nil {
		return fmt.Errorf("encoding audit log: %w", err)
	}
	if err := l.store.Set(ctx, AuditLogBucket, data); err != nil {
		return &StorageError{Op: "set", Bucket: AuditLogBucket, Err: err}
	}
	return nil
}

// recordPersistFailureLocked captures a failed write as a SYSTEM_ERROR event.
// The secondary event's own persistence failure is only logged.
func (l *AuditLog) recordPersistFailureLocked(ctx context.Context, failed AuditEvent, cause error) *AuditEvent {
	l.logger.Error("persisting audit log failed", "eventType", failed.EventType, "eventID", failed.ID, "error", cause)

	sysErr := l.prepareLocked(ctx, AuditEvent{
		EventType: EventSystemError,
		Details: map[string]any{
			"errorMessage":    cause.Error(),
			"failedEventType": string(failed.EventType),
			"failedEventId":   failed.ID,
		},
	})
	l.insertLocked(sysErr)
	if err := l.persistLocked(ctx); err != nil {
		l.logger.Error("persisting audit failure event failed", "error", err)
	}
	return &sysErr
}

// All returns a snapshot of every retained event, newest first.
func (l *AuditLog) All() []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneEvents(l.events)
}

// Len returns the number of retained events.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Get returns the event with the given ID.
func (l *AuditLog) Get(id string) (AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.events {
		if e.ID == id {
			return e.clone(), nil
		}
	}
	return AuditEvent{}, &NotFoundError{Kind: "audit event", ID: id}
}

// CleanupOlderThan removes events older than now minus retentionDays and
// returns how many were removed. The sweep itself is recorded as an
// AUDIT_LOG_CLEANUP event.
func (l *AuditLog) CleanupOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, NewValidationError("retentionDays", "must not be negative")
	}
	cutoff := l.clock.Now().AddDate(0, 0, -retentionDays)

	l.mu.Lock()
	kept := l.events[:0:0]
	for _, e := range l.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(l.events) - len(kept)
	var persistErr error
	if removed > 0 {
		l.events = kept
		persistErr = l.persistLocked(ctx)
	}
	l.mu.Unlock()

	if persistErr != nil {
		return removed, persistErr
	}

	l.logger.Info("audit log cleanup", "removed", removed, "retentionDays", retentionDays)
	l.Append(ctx, AuditEvent{
		EventType: EventAuditLogCleanup,
		Details: map[string]any{
			"removedCount":  removed,
			"retentionDays": retentionDays,
			"cutoff":        cutoff.UTC().Format(time.RFC3339),
		},
	})
	return removed, nil
}

// Subscribe registers a listener invoked after every append. The returned
// function removes it.
func (l *AuditLog) Subscribe(fn Listener) (unsubscribe func()) {
	return l.listeners.add(fn)
}

func cloneEvents(events []AuditEvent) []AuditEvent {
	out := make([]AuditEvent, len(events))
	for i, e := range events {
		out[i] = e.clone()
	}
	return out
}
