// Package alerting runs the suspicious activity heuristics as audit events
// arrive and records each new alert in the audit log.
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"cav-go/internal/bus"
	"cav-go/internal/cav"
)

// DefaultCooldown is how long an alert key stays quiet after being raised.
const DefaultCooldown = time.Hour

// systemActor attributes watcher-generated events.
var systemActor = cav.Actor{UserID: "system", UserName: "alert-watcher", UserRole: "system"}

// Detector is the part of cav.Service the watcher drives.
type Detector interface {
	DetectSuspiciousActivity() []cav.Alert
	LogEvent(ctx context.Context, eventType cav.EventType, details map[string]any) (cav.AuditEvent, error)
}

// Watcher consumes the audit event bus. After every event other than its own
// SUSPICIOUS_ACTIVITY records it re-runs detection and raises alerts whose key
// has not been raised within the cooldown.
type Watcher struct {
	bus      *bus.Bus
	detector Detector
	recorder cav.Recorder
	logger   cav.Logger
	clock    cav.Clock
	cooldown time.Duration

	mu     sync.Mutex
	raised map[string]time.Time
}

var _ suture.Service = (*Watcher)(nil)

// NewWatcher creates a Watcher. A non-positive cooldown selects
// DefaultCooldown; a nil recorder discards measurements.
func NewWatcher(b *bus.Bus, detector Detector, recorder cav.Recorder, logger cav.Logger, clock cav.Clock, cooldown time.Duration) *Watcher {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if recorder == nil {
		recorder = cav.NopRecorder{}
	}
	return &Watcher{
		bus:      b,
		detector: detector,
		recorder: recorder,
		logger:   logger,
		clock:    clock,
		cooldown: cooldown,
		raised:   make(map[string]time.Time),
	}
}

// Serve implements suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	messages, err := w.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", bus.AuditEventsTopic, err)
	}
	w.logger.Info("alert watcher started", "cooldown", w.cooldown)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("audit event bus closed: %w", suture.ErrDoNotRestart)
			}
			eventType := cav.EventType(msg.Metadata.Get(bus.MetaEventType))
			msg.Ack()
			w.Handle(ctx, eventType)
		}
	}
}

// Handle reacts to one appended event and returns the alerts it raised.
func (w *Watcher) Handle(ctx context.Context, eventType cav.EventType) []cav.Alert {
	if eventType == cav.EventSuspiciousActivity {
		return nil
	}

	var raised []cav.Alert
	for _, a := range w.detector.DetectSuspiciousActivity() {
		if !w.claim(a.Key()) {
			continue
		}
		raised = append(raised, a)
		w.logger.Warn("suspicious activity detected", "type", a.Type, "severity", a.Severity, "message", a.Message)
		w.recorder.AlertRaised(a)

		actx := cav.WithActor(ctx, systemActor, "")
		if _, err := w.detector.LogEvent(actx, cav.EventSuspiciousActivity, map[string]any{
			"alertType":     a.Type,
			"alertSeverity": string(a.Severity),
			"message":       a.Message,
			"evidence":      a.Evidence,
		}); err != nil {
			w.logger.Error("recording alert failed", "type", a.Type, "error", err)
		}
	}
	return raised
}

// claim reports whether key may be raised now, and marks it raised if so.
func (w *Watcher) claim(key string) bool {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.raised[key]; ok && now.Sub(last) < w.cooldown {
		return false
	}
	w.raised[key] = now
	return true
}

func (w *Watcher) String() string { return "alert-watcher" }
