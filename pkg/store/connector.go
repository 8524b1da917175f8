package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mac-/configurine/pkg/log"
)

// State is the connection state of a Connector.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrClosed is returned by Connect after Shutdown.
var ErrClosed = errors.New("store is closed")

// DefaultDialTimeout bounds a single dial attempt.
const DefaultDialTimeout = 10 * time.Second

type dialResult[T any] struct {
	handle T
	err    error
}

// Connector owns the single connection handle of a backend. At most one dial runs at a time:
// callers arriving while a dial is in flight are queued and all receive that dial's result.
// A failed dial returns the connector to Disconnected so the next call dials again.
type Connector[T any] struct {
	mu      sync.Mutex
	state   State
	closed  bool
	handle  T
	waiters []chan dialResult[T]

	dial        func(ctx context.Context) (T, error)
	close       func(T) error
	dialTimeout time.Duration
	logger      log.Logger
}

// NewConnector creates a connector. closeFn may be nil when the handle needs no cleanup.
func NewConnector[T any](dial func(ctx context.Context) (T, error), closeFn func(T) error, logger log.Logger) *Connector[T] {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Connector[T]{
		dial:        dial,
		close:       closeFn,
		dialTimeout: DefaultDialTimeout,
		logger:      logger,
	}
}

// SetDialTimeout changes the per-dial timeout. Zero disables it.
func (c *Connector[T]) SetDialTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialTimeout = d
}

// State returns the current state.
func (c *Connector[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect returns the connected handle, dialing if needed. The dial itself is not bound to
// the caller's cancellation because queued callers share its result; ctx only limits how long
// this caller waits.
func (c *Connector[T]) Connect(ctx context.Context) (T, error) {
	var zero T

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	switch c.state {
	case Connected:
		h := c.handle
		c.mu.Unlock()
		return h, nil
	case Connecting:
		ch := make(chan dialResult[T], 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		select {
		case res := <-ch:
			return res.handle, res.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	c.state = Connecting
	timeout := c.dialTimeout
	c.mu.Unlock()

	c.logger.Debug("Connecting to store")
	dialCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(dialCtx, timeout)
		defer cancel()
	}
	h, err := c.dial(dialCtx)

	c.mu.Lock()
	if err != nil {
		c.state = Disconnected
	} else if c.closed {
		// Shutdown ran while dialing; the fresh handle must not leak.
		c.state = Disconnected
		if c.close != nil {
			_ = c.close(h)
		}
		h, err = zero, ErrClosed
	} else {
		c.state = Connected
		c.handle = h
	}
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w <- dialResult[T]{handle: h, err: err}
	}

	if err != nil {
		c.logger.Warn("Store connection failed", log.Err(err), log.Int("waiters", len(waiters)))
		return zero, err
	}
	c.logger.Info("Store connected")
	return h, nil
}

// Disconnect closes the handle if connected and resets the state. A later Connect dials again.
func (c *Connector[T]) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

// Shutdown disconnects and makes every later Connect fail with ErrClosed.
func (c *Connector[T]) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.disconnectLocked()
}

func (c *Connector[T]) disconnectLocked() error {
	if c.state != Connected {
		return nil
	}
	var zero T
	h := c.handle
	c.handle = zero
	c.state = Disconnected
	if c.close != nil {
		return c.close(h)
	}
	return nil
}
