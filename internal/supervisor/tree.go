// Package supervisor runs the long-lived parts of `cav serve` under a suture
// supervisor tree: the alert watcher, the scheduled jobs and the HTTP API.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every layer.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture's stock restart policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor with one child supervisor per layer, so a
// crashing job never takes the API down with it.
type Tree struct {
	root   *suture.Supervisor
	events *suture.Supervisor
	jobs   *suture.Supervisor
	api    *suture.Supervisor
}

// NewTree builds the supervisor hierarchy. Zero config fields take the
// DefaultTreeConfig values.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	d := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = d.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = d.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = d.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = d.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	handler := &sutureslog.Handler{Logger: logger}
	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	// Children inherit the root's EventHook when added.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	t := &Tree{
		root:   suture.New("cav", rootSpec),
		events: suture.New("event-layer", childSpec),
		jobs:   suture.New("job-layer", childSpec),
		api:    suture.New("api-layer", childSpec),
	}
	t.root.Add(t.events)
	t.root.Add(t.jobs)
	t.root.Add(t.api)
	return t
}

// AddEventService adds a bus consumer such as the alert watcher.
func (t *Tree) AddEventService(svc suture.Service) suture.ServiceToken {
	return t.events.Add(svc)
}

// AddJobService adds a periodic job.
func (t *Tree) AddJobService(svc suture.Service) suture.ServiceToken {
	return t.jobs.Add(svc)
}

// AddAPIService adds the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine and reports its exit on the
// returned channel.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
