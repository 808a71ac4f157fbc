package recordstore

import (
	"context"
	"reflect"
	"sync"
)

// SubscribeOption configures a Subscription.
type SubscribeOption func(*Subscription)

// OnError receives failures to refresh the watched value. The
// subscription stays active.
func OnError(fn func(error)) SubscribeOption {
	return func(s *Subscription) { s.onError = fn }
}

// Subscription delivers the value at a path each time it changes. Callbacks
// run on one goroutine per subscription, in order.
type Subscription struct {
	c        *Client
	path     Path
	onChange func(Snapshot)
	onError  func(error)

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	last   any
}

// Subscribe calls onChange with the current value at p, then again after
// every write that changes it. The subscription ends when Unsubscribe is
// called, ctx is done, or the Client closes.
func (c *Client) Subscribe(ctx context.Context, p Path, onChange func(Snapshot), opts ...SubscribeOption) (*Subscription, error) {
	if onChange == nil {
		return nil, wrap("subscribe", p, Errorf(KindInvalidRecord, "nil callback"))
	}
	if err := c.listen(); err != nil {
		return nil, wrap("subscribe", p, err)
	}
	s := &Subscription{
		c:        c,
		path:     p,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := c.addSub(s); err != nil {
		return nil, wrap("subscribe", p, err)
	}
	initial, err := c.backend.Get(ctx, p)
	if err != nil {
		s.Unsubscribe()
		return nil, wrap("subscribe", p, err)
	}
	go s.run(ctx, initial)
	return s, nil
}

// Path returns the watched path.
func (s *Subscription) Path() Path { return s.path }

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe stops delivery. It is safe to call more than once and from
// inside the callback; a callback already running is allowed to finish.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.c.removeSub(s)
	})
}

func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context, initial any) {
	defer s.Unsubscribe()
	s.deliver(initial)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.signal:
			v, err := s.c.backend.Get(ctx, s.path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if s.onError != nil {
					s.onError(wrap("subscribe", s.path, err))
				}
				continue
			}
			if reflect.DeepEqual(v, s.last) {
				continue
			}
			s.deliver(v)
		}
	}
}

func (s *Subscription) deliver(v any) {
	select {
	case <-s.done:
		return
	default:
	}
	s.last = v
	s.onChange(Snapshot{Path: s.path, Value: v})
}
