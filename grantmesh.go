// Package grantmesh wires the grant store, agent registry, dispatcher and
// transport into one value. Most applications:
//  1. create a Mesh via New (optionally overriding the in-memory store and registry)
//  2. serve it over HTTP/WebSocket with Serve, or talk to it in process via Client
//  3. schedule RunReaper (or trigger ReapIdle) to evict idle agents
package grantmesh

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/grantmesh/client"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/internal/clock"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/metrics"
	"github.com/hupe1980/grantmesh/registry"
	"github.com/hupe1980/grantmesh/store"
	"github.com/hupe1980/grantmesh/transport"
	"golang.org/x/time/rate"
)

// Options configures a Mesh.
type Options struct {
	// Store and Registry default to in-memory implementations.
	Store    core.GrantStore
	Registry core.AgentRegistry
	// Clock is passed to the default store and registry.
	Clock clock.Clock

	Logger  logging.Logger
	Metrics *metrics.Metrics

	// Sinks receive every dispatcher event (Redis, ledger).
	Sinks []feed.Sink
	// Closers are released by Close, typically the sinks' connections.
	Closers []io.Closer

	// RateLimit is the sustained per-agent call rate. Zero disables limiting.
	RateLimit rate.Limit
	Burst     int

	// EventBuffer is the per-WebSocket event queue size.
	EventBuffer int
}

// Mesh is the assembled grantmesh service.
type Mesh struct {
	opts       Options
	logger     logging.Logger
	dispatcher *dispatch.Dispatcher
	server     *transport.Server
}

// New creates a Mesh. Any unset store or registry is initialized in memory.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Clock:       clock.System{},
		Logger:      logging.NoOpLogger{},
		Burst:       10,
		EventBuffer: feed.DefaultBuffer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore(func(o *store.Options) { o.Clock = opts.Clock })
	}
	if opts.Registry == nil {
		opts.Registry = registry.New(func(o *registry.Options) { o.Clock = opts.Clock })
	}

	d, err := dispatch.New(opts.Store, opts.Registry, func(o *dispatch.Options) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.Sinks = opts.Sinks
		o.RateLimit = opts.RateLimit
		o.Burst = opts.Burst
	})
	if err != nil {
		return nil, err
	}

	srv := transport.NewServer(d, func(o *transport.Options) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.EventBuffer = opts.EventBuffer
	})

	return &Mesh{
		opts:       opts,
		logger:     logging.OrNoOp(opts.Logger),
		dispatcher: d,
		server:     srv,
	}, nil
}

// Dispatcher exposes the underlying dispatcher.
func (m *Mesh) Dispatcher() *dispatch.Dispatcher { return m.dispatcher }

// Handler returns the HTTP/WebSocket handler.
func (m *Mesh) Handler() http.Handler { return m.server }

// Client returns an in-process client. It still needs Connect.
func (m *Mesh) Client(optFns ...func(o *client.Options)) *client.Client {
	return client.New(client.NewLocalTransport(m.dispatcher), optFns...)
}

// Serve listens on addr until ctx is cancelled.
func (m *Mesh) Serve(ctx context.Context, addr string) error {
	return m.server.ListenAndServe(ctx, addr)
}

// ReapIdle removes agents idle for longer than threshold.
func (m *Mesh) ReapIdle(threshold time.Duration) int {
	return m.dispatcher.ReapIdle(threshold)
}

// RunReaper calls ReapIdle every interval until ctx is cancelled.
func (m *Mesh) RunReaper(ctx context.Context, interval, threshold time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle(threshold)
		}
	}
}

// Close stops event delivery and releases the configured closers.
func (m *Mesh) Close() error {
	m.dispatcher.Hub().Close()
	var errs []error
	for _, c := range m.opts.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
