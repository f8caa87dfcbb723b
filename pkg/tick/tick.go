//go:generate mockgen -source tick.go -destination ../../internal/mocks/mock_tick.go -package mocks Waker

// Package tick defines the poll context that drives every reactive query once per
// external tick, together with the wake signal producers use to notify the driver.
package tick

// Waker is notified when a source has pending changes that the next tick should observe.
// Wake must be safe to call from any goroutine and must never block.
type Waker interface {
	Wake()
}

// Context is passed to every Poll call within one tick.
type Context struct {
	// Tick is the id of the tick being polled. Ids increase monotonically for the lifetime
	// of the driver; operators that must be polled at most once per tick compare it.
	Tick uint64

	waker Waker
}

// NewContext returns a Context for the given tick that registers w with every polled source.
func NewContext(id uint64, w Waker) *Context {
	if w == nil {
		w = noopWaker{}
	}
	return &Context{Tick: id, waker: w}
}

// Noop returns a Context whose waker discards every wake. It is intended for tests and for
// drivers that poll on a fixed schedule.
func Noop(id uint64) *Context {
	return NewContext(id, noopWaker{})
}

// Waker returns the waker registered for this tick.
func (c *Context) Waker() Waker {
	return c.waker
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// Notifier is a Waker that coalesces any number of wakes into a single pending signal.
// A zero value Notifier is not usable; use NewNotifier.
type Notifier struct {
	ch chan struct{}
}

var _ Waker = (*Notifier)(nil)

// NewNotifier is a function that constructs a Notifier with an empty signal.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Wake records a pending signal. Concurrent and repeated wakes before the signal is consumed
// collapse into one.
func (n *Notifier) Wake() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives a value once per batch of wakes.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}

// Woken reports whether a signal was pending and consumes it.
func (n *Notifier) Woken() bool {
	select {
	case <-n.ch:
		return true
	default:
		return false
	}
}
