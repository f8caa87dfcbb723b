package reactive

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

// Digest returns an order-independent hash of the contents of q. Keys and values are hashed
// through their default formatting, so two queries with equal digests hold equal entries for
// any key and value types whose formatting is injective.
func Digest[K comparable, V any](q query.Query[K, V]) uint64 {
	var sum uint64
	d := xxhash.New()
	for k, v := range q.All() {
		d.Reset()
		_, _ = fmt.Fprintf(d, "%v\x00%v", k, v)
		sum += d.Sum64()
	}
	return sum
}

type debugQuery[K comparable, V any] struct {
	upstream ReactiveQuery[K, V]
	label    string
	logger   logger.Logger
	shadow   query.HashMap[K, V]
	validate bool
}

// DebugOpt configures Debug.
type DebugOpt func(*debugOptions)

type debugOptions struct {
	validate bool
}

// WithValidation makes Debug keep a shadow copy of the view, checking every change against it
// and comparing digests after each poll. Any mismatch panics.
func WithValidation() DebugOpt {
	return func(o *debugOptions) {
		o.validate = true
	}
}

// Debug passes upstream through unchanged while logging every non-empty change set at debug
// level under label.
func Debug[K comparable, V any](upstream ReactiveQuery[K, V], label string, l logger.Logger, opts ...DebugOpt) ReactiveQuery[K, V] {
	var o debugOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := &debugQuery[K, V]{
		upstream: upstream,
		label:    label,
		logger:   l.With(zap.String("query", label)),
		validate: o.validate,
	}
	if o.validate {
		d.shadow = make(query.HashMap[K, V])
	}
	return d
}

func (d *debugQuery[K, V]) Poll(cx *tick.Context) (query.Changes[K, V], query.Query[K, V]) {
	changes, view := d.upstream.Poll(cx)

	materialized := query.MaterializeChanges(changes)
	if len(materialized) > 0 {
		d.logger.Debug("reactive query changed",
			zap.Uint64("tick", cx.Tick),
			zap.Int("changes", len(materialized)),
			zap.Stringer("delta", changeSummary[K, V](materialized)),
		)
	}

	if d.validate {
		d.check(materialized, view)
	}
	return materialized, view
}

func (d *debugQuery[K, V]) check(changes query.ChangeMap[K, V], view query.Query[K, V]) {
	query.CheckSameTick[K, V](view, changes)

	for k, c := range changes {
		old, hadOld := c.OldValue()
		_, inShadow := d.shadow[k]
		if hadOld != inShadow {
			d.logger.Panic("change disagrees with previous view",
				zap.String("key", fmt.Sprint(k)),
				zap.Stringer("change", c),
				zap.Bool("in_previous_view", inShadow),
			)
		}
		if hadOld && fmt.Sprint(old) != fmt.Sprint(d.shadow[k]) {
			d.logger.Panic("change carries a stale old value",
				zap.String("key", fmt.Sprint(k)),
				zap.Stringer("change", c),
			)
		}
		if v, ok := c.NewValue(); ok {
			d.shadow[k] = v
			continue
		}
		delete(d.shadow, k)
	}

	if want, got := Digest[K, V](d.shadow), Digest(view); want != got {
		d.logger.Panic("view diverged from accumulated changes",
			zap.Uint64("expected_digest", want),
			zap.Uint64("view_digest", got),
		)
	}
}

func (d *debugQuery[K, V]) Request(req Request) {
	d.logger.Debug("request", zap.Stringer("request", req))
	d.upstream.Request(req)
}

type changeSummary[K comparable, V any] query.ChangeMap[K, V]

func (s changeSummary[K, V]) String() string {
	return fmt.Sprint(map[K]query.ValueChange[V](s))
}
