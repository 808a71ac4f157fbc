package recordstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFeedClosed is returned by a Feed after Close.
var ErrFeedClosed = errors.New("change feed closed")

// Change announces a successful write to one or more paths.
type Change struct {
	Paths  []string  `json:"paths"`
	Op     string    `json:"op"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// Feed carries Changes from writers to subscribers.
type Feed interface {
	Publish(ctx context.Context, c Change) error
	// Listen streams every Change published after it returns. The channel is
	// closed when ctx is done or the feed closes.
	Listen(ctx context.Context) (<-chan Change, error)
	Close() error
}

type listener struct {
	ch   chan Change
	quit chan struct{}
}

// LocalFeed fans Changes out to listeners in the same process.
type LocalFeed struct {
	register   chan *listener
	unregister chan *listener
	inbound    chan Change
	done       chan struct{}
	closeOnce  sync.Once
}

// NewLocalFeed starts the broadcast loop.
func NewLocalFeed() *LocalFeed {
	f := &LocalFeed{
		register:   make(chan *listener),
		unregister: make(chan *listener),
		inbound:    make(chan Change),
		done:       make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *LocalFeed) run() {
	listeners := make(map[*listener]struct{})
	for {
		select {
		case l := <-f.register:
			listeners[l] = struct{}{}
		case l := <-f.unregister:
			if _, ok := listeners[l]; ok {
				delete(listeners, l)
				close(l.ch)
			}
		case c := <-f.inbound:
			for l := range listeners {
				select {
				case l.ch <- c:
				case <-l.quit:
				}
			}
		case <-f.done:
			for l := range listeners {
				close(l.ch)
			}
			return
		}
	}
}

func (f *LocalFeed) Publish(ctx context.Context, c Change) error {
	select {
	case f.inbound <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return ErrFeedClosed
	}
}

func (f *LocalFeed) Listen(ctx context.Context) (<-chan Change, error) {
	l := &listener{ch: make(chan Change, 64), quit: make(chan struct{})}
	select {
	case f.register <- l:
	case <-f.done:
		return nil, ErrFeedClosed
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
			return
		}
		close(l.quit)
		select {
		case f.unregister <- l:
		case <-f.done:
		}
	}()
	return l.ch, nil
}

func (f *LocalFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}
