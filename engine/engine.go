// Package engine drives the message generation cycle. A fixed timing
// pulse walks the definition registry; each definition counts pulses
// down to its next generation, renders its variable set, and hands the
// message to its sink.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tjmonk/varmsg/definition"
	"github.com/tjmonk/varmsg/metric"
	"github.com/tjmonk/varmsg/render"
	"github.com/tjmonk/varmsg/varstore"
)

// DefaultPulse is the tick period driving interval countdowns. One
// pulse equals one interval unit in the definition documents.
const DefaultPulse = time.Second

// Engine owns the generation loop.
type Engine struct {
	registry *definition.Registry
	store    varstore.Store
	renderer *render.Renderer
	metrics  *metric.Metrics
	logger   *slog.Logger
	pulse    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithPulse overrides the tick period. Values at or below zero keep
// the default.
func WithPulse(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pulse = d
		}
	}
}

// WithMetrics attaches generator metrics to the engine.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine over the given registry. The store serves
// control-variable reads and counter publication; the renderer builds
// the message bodies.
func New(registry *definition.Registry, store varstore.Store, renderer *render.Renderer,
	logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		registry: registry,
		store:    store,
		renderer: renderer,
		logger:   logger,
		pulse:    DefaultPulse,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the pulse loop until the context is cancelled. Cancellation
// is a clean shutdown and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	if e.metrics != nil {
		e.metrics.RecordDefinitionsLoaded(e.registry.Len())
	}

	e.logger.Info("engine running",
		"definitions", e.registry.Len(),
		"pulse", e.pulse)

	ticker := time.NewTicker(e.pulse)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping")
			return nil
		case <-ticker.C:
			e.Pulse(ctx)
		}
	}
}

// Pulse processes one tick across every definition in registry order.
// Definitions fail independently; one broken definition never stalls
// its siblings.
func (e *Engine) Pulse(ctx context.Context) {
	start := time.Now()

	for _, def := range e.registry.Definitions() {
		e.process(ctx, def)
	}

	if e.metrics != nil {
		e.metrics.RecordPulse(time.Since(start))
	}
}

// process runs one definition through one tick: pick up control
// variable changes, advance the countdown, and generate when it fires.
func (e *Engine) process(ctx context.Context, def *definition.Definition) {
	if err := def.RefreshEnable(ctx, e.store); err != nil {
		e.logger.Warn("failed to refresh enable switch",
			"definition", def.Name, "error", err)
	}

	rescan, err := def.CheckRescan(ctx, e.store)
	if err != nil {
		e.logger.Warn("failed to check rescan switch",
			"definition", def.Name, "error", err)
	} else if rescan {
		if err := def.Rescan(ctx, e.store); err != nil {
			e.logger.Warn("rescan failed",
				"definition", def.Name, "error", err)
		} else {
			e.logger.Info("definition rescanned",
				"definition", def.Name,
				"body_vars", def.BodySet.Len())
		}
	}

	if !def.TickCountdown() {
		return
	}

	e.generate(ctx, def)
}

// generate renders one message for the definition and dispatches it.
func (e *Engine) generate(ctx context.Context, def *definition.Definition) {
	start := time.Now()
	msg, err := e.renderer.Render(ctx, def)
	if err != nil {
		e.logger.Warn("render failed", "definition", def.Name, "error", err)
		if e.metrics != nil {
			e.metrics.RecordGenerationError(def.Name)
		}
		e.publishCounters(ctx, def)
		return
	}
	if e.metrics != nil {
		e.metrics.RecordRenderDuration(def.Name, time.Since(start))
	}

	if err := def.Sink.Dispatch(msg); err != nil {
		e.logger.Warn("dispatch failed",
			"definition", def.Name,
			"sink", def.Sink.Kind().String(),
			"error", err)
		def.IncrementErr()
		if e.metrics != nil {
			e.metrics.RecordGenerationError(def.Name)
		}
		e.publishCounters(ctx, def)
		return
	}

	if e.metrics != nil {
		e.metrics.RecordGeneration(def.Name)
		e.metrics.RecordDispatch(def.Name, def.Sink.Kind().String())
	}
	e.publishCounters(ctx, def)
}

// publishCounters pushes the definition's tx/err counters back to its
// control variables.
func (e *Engine) publishCounters(ctx context.Context, def *definition.Definition) {
	if err := def.PublishCounters(ctx, e.store); err != nil {
		e.logger.Warn("failed to publish counters",
			"definition", def.Name, "error", err)
	}
}
