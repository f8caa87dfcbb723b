// Package scheduler owns a set of independent reactive queries and advances all of them once per
// external tick.
package scheduler

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/reactive/pkg/collector"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

// Token identifies one registration. The zero value of every token type is invalid.
type Token interface {
	id() uint64
}

// QueryToken identifies a reactive query with keys K and values V.
type QueryToken[K comparable, V any] struct {
	tokenID uint64
}

func (t QueryToken[K, V]) id() uint64 { return t.tokenID }

// UpdaterToken identifies a multi-updater maintaining a T.
type UpdaterToken[T any] struct {
	tokenID uint64
}

func (t UpdaterToken[T]) id() uint64 { return t.tokenID }

type entry interface {
	poll(cx *tick.Context) (result any, changes int)
	request(req reactive.Request)
	name() string
}

type queryEntry[K comparable, V any] struct {
	label string
	q     reactive.ReactiveQuery[K, V]
}

func (e *queryEntry[K, V]) poll(cx *tick.Context) (any, int) {
	changes, view := e.q.Poll(cx)
	materialized := query.MaterializeChanges(changes)
	return QueryResult[K, V]{Changes: materialized, View: view}, len(materialized)
}

func (e *queryEntry[K, V]) request(req reactive.Request) { e.q.Request(req) }
func (e *queryEntry[K, V]) name() string                 { return e.label }

type updaterEntry[T any] struct {
	label   string
	updater *collector.MultiUpdateContainer[T]
}

func (e *updaterEntry[T]) poll(cx *tick.Context) (any, int) {
	e.updater.Update(cx)
	return e.updater.Target(), 0
}

func (e *updaterEntry[T]) request(req reactive.Request) { e.updater.Request(req) }
func (e *updaterEntry[T]) name() string                 { return e.label }

// ReactiveQueryCtx is the registry of live reactive queries. It must be driven from a single
// goroutine.
type ReactiveQueryCtx struct {
	entries map[uint64]entry
	nextID  uint64
	tickID  uint64
	logger  logger.Logger
	tracer  trace.Tracer
}

// ReactiveQueryCtxOption configures a ReactiveQueryCtx.
type ReactiveQueryCtxOption func(*ReactiveQueryCtx)

// WithLogger sets the logger used for registration and tick summaries.
func WithLogger(l logger.Logger) ReactiveQueryCtxOption {
	return func(c *ReactiveQueryCtx) {
		c.logger = l
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ReactiveQueryCtxOption {
	return func(c *ReactiveQueryCtx) {
		c.tracer = tp.Tracer("pkg/scheduler")
	}
}

// New is a function that returns an empty registry.
func New(opts ...ReactiveQueryCtxOption) *ReactiveQueryCtx {
	c := &ReactiveQueryCtx{
		entries: make(map[uint64]entry),
		logger:  logger.NewNoopLogger(),
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ReactiveQueryCtx) register(e entry) uint64 {
	c.nextID++
	id := c.nextID
	c.entries[id] = e
	registeredQueriesGauge.Inc()
	c.logger.Debug("registered reactive query", zap.Uint64("token", id), zap.String("name", e.name()))
	return id
}

// RegisterReactiveQuery adds q to the registry. From the next PollUpdateAll on, q is polled once
// per tick and its result can be taken with TakeReactiveQueryUpdated.
func RegisterReactiveQuery[K comparable, V any](c *ReactiveQueryCtx, name string, q reactive.ReactiveQuery[K, V]) QueryToken[K, V] {
	return QueryToken[K, V]{tokenID: c.register(&queryEntry[K, V]{label: name, q: q})}
}

// RegisterMultiUpdater adds u to the registry. Every tick all of its sources are applied to its
// target, which can be taken with TakeMultiUpdated.
func RegisterMultiUpdater[T any](c *ReactiveQueryCtx, name string, u *collector.MultiUpdateContainer[T]) UpdaterToken[T] {
	return UpdaterToken[T]{tokenID: c.register(&updaterEntry[T]{label: name, updater: u})}
}

// Deregister removes the registration identified by tok. The query is dropped immediately and no
// longer polled, and it receives a Release request, so producers writing into the channels it
// consumed observe them as closed. Deregistering an unknown or already deregistered token panics.
func (c *ReactiveQueryCtx) Deregister(tok Token) {
	id := tok.id()
	e, ok := c.entries[id]
	if !ok {
		panic(fmt.Sprintf("scheduler: deregister of unknown or already deregistered token %d", id))
	}
	delete(c.entries, id)
	e.request(reactive.Release)
	registeredQueriesGauge.Dec()
	c.logger.Debug("deregistered reactive query", zap.Uint64("token", id), zap.String("name", e.name()))
}

// Len returns the number of live registrations.
func (c *ReactiveQueryCtx) Len() int {
	return len(c.entries)
}

// Tick returns the id of the last tick driven.
func (c *ReactiveQueryCtx) Tick() uint64 {
	return c.tickID
}

// PollUpdateAll starts a new tick and polls every registration once, in registration order.
// waker is registered with every collective channel reached by the poll and may be nil.
func (c *ReactiveQueryCtx) PollUpdateAll(ctx context.Context, waker tick.Waker) *ResultCtx {
	c.tickID++
	cx := tick.NewContext(c.tickID, waker)

	ctx, span := c.tracer.Start(ctx, "reactiveQueryCtx.PollUpdateAll", trace.WithAttributes(
		attribute.Int64("tick", int64(c.tickID)),
		attribute.Int("registrations", len(c.entries)),
	))
	defer span.End()

	start := time.Now()
	results := make(map[uint64]any, len(c.entries))
	var total int
	for _, id := range slices.Sorted(maps.Keys(c.entries)) {
		e := c.entries[id]
		_, child := c.tracer.Start(ctx, "reactiveQuery.Poll", trace.WithAttributes(attribute.String("name", e.name())))
		result, changes := e.poll(cx)
		child.SetAttributes(attribute.Int("changes", changes))
		child.End()

		results[id] = result
		total += changes
	}
	elapsed := time.Since(start)

	tickCounter.Inc()
	tickDurationHistogram.Observe(elapsed.Seconds())
	changesPerTickHistogram.Observe(float64(total))
	span.SetAttributes(attribute.Int("changes", total))

	c.logger.DebugWithContext(ctx, "tick completed",
		zap.Uint64("tick", c.tickID),
		zap.Int("changes", total),
		zap.Duration("duration", elapsed),
	)

	return &ResultCtx{
		tick:    c.tickID,
		results: results,
		shared:  make(map[reflect.Type]any),
	}
}

// RequestAll forwards req to every registration.
func (c *ReactiveQueryCtx) RequestAll(req reactive.Request) {
	for _, e := range c.entries {
		e.request(req)
	}
}

// ShrinkToFitAll asks every registration to release storage held for removed entries.
func (c *ReactiveQueryCtx) ShrinkToFitAll() {
	c.RequestAll(reactive.ShrinkToFit)
}
