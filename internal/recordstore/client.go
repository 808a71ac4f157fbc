// Package recordstore is a client for a hierarchical key-value namespace:
// records live at slash separated paths, writes merge or replace whole
// subtrees, and subscribers are told whenever a path they watch changes.
package recordstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"classroom/internal/applog"
)

// Gauge tracks the number of live subscriptions.
type Gauge interface {
	Inc()
	Dec()
}

// Option configures a Client.
type Option func(*Client)

// WithFeed replaces the default in-process change feed.
func WithFeed(f Feed) Option {
	return func(c *Client) {
		c.feed = f
		c.ownsFeed = false
	}
}

// WithGauge reports subscription counts to g.
func WithGauge(g Gauge) Option {
	return func(c *Client) { c.gauge = g }
}

// Client performs store operations against a Backend and keeps
// subscriptions current through a Feed.
type Client struct {
	backend  Backend
	feed     Feed
	ownsFeed bool
	gauge    Gauge
	origin   string

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	listening bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New returns a Client writing through b.
func New(b Backend, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		backend:  b,
		feed:     nil,
		ownsFeed: true,
		origin:   uuid.NewString(),
		subs:     make(map[*Subscription]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.feed == nil {
		c.feed = NewLocalFeed()
		c.ownsFeed = true
	}
	return c
}

// Create stores record under parent with a new time-ordered key and
// returns that key.
func (c *Client) Create(ctx context.Context, parent Path, record any) (string, error) {
	if len(parent)+1 > MaxDepth {
		return "", wrap("create", parent, Errorf(KindInvalidRecord, "path deeper than %d segments", MaxDepth))
	}
	v, err := normalizeRecord(record)
	if err != nil {
		return "", wrap("create", parent, err)
	}
	key, err := c.backend.Push(ctx, parent, v)
	if err != nil {
		return "", wrap("create", parent, err)
	}
	child := append(append(Path{}, parent...), key)
	c.publish(ctx, "create", child)
	return key, nil
}

// CreateAt stores record at p, replacing whatever was there.
func (c *Client) CreateAt(ctx context.Context, p Path, record any) error {
	v, err := normalizeRecord(record)
	if err != nil {
		return wrap("set", p, err)
	}
	if p.IsRoot() {
		if _, ok := v.(map[string]any); !ok {
			return wrap("set", p, Errorf(KindInvalidRecord, "root must hold a record"))
		}
	}
	if err := c.backend.Set(ctx, p, v); err != nil {
		return wrap("set", p, err)
	}
	c.publish(ctx, "set", p)
	return nil
}

// Read fetches the value at p once.
func (c *Client) Read(ctx context.Context, p Path) (Snapshot, error) {
	v, err := c.backend.Get(ctx, p)
	if err != nil {
		return Snapshot{}, wrap("read", p, err)
	}
	return Snapshot{Path: p, Value: v}, nil
}

// Update merges partial into the record at p. Keys may name nested children
// ("a/b"); a nil value removes that child. All keys are applied atomically.
func (c *Client) Update(ctx context.Context, p Path, partial map[string]any) error {
	writes, err := ParseUpdate(p, partial)
	if err != nil {
		return wrap("update", p, err)
	}
	if err := c.backend.Update(ctx, p, writes); err != nil {
		return wrap("update", p, err)
	}
	paths := make([]Path, len(writes))
	for i, w := range writes {
		paths[i] = w.Path
	}
	c.publish(ctx, "update", paths...)
	return nil
}

// Delete removes the subtree at p. Other paths are never touched.
func (c *Client) Delete(ctx context.Context, p Path) error {
	if p.IsRoot() {
		return wrap("delete", p, Errorf(KindInvalidRecord, "refusing to delete the root"))
	}
	if err := c.backend.Delete(ctx, p); err != nil {
		return wrap("delete", p, err)
	}
	c.publish(ctx, "delete", p)
	return nil
}

// Close ends every subscription and releases the backend.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	c.cancel()
	if c.ownsFeed {
		_ = c.feed.Close()
	}
	return c.backend.Close()
}

func normalizeRecord(record any) (any, error) {
	v, err := Normalize(record)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, Errorf(KindInvalidRecord, "empty record")
	}
	return v, nil
}

func (c *Client) publish(ctx context.Context, op string, paths ...Path) {
	ch := Change{Op: op, Origin: c.origin, At: time.Now().UTC()}
	for _, p := range paths {
		ch.Paths = append(ch.Paths, p.String())
	}
	if err := c.feed.Publish(context.WithoutCancel(ctx), ch); err != nil {
		applog.Printf("recordstore: publish %s %v: %v", op, ch.Paths, err)
	}
}

// listen starts the dispatcher on first use.
func (c *Client) listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Errorf(KindUnavailable, "client closed")
	}
	if c.listening {
		return nil
	}
	changes, err := c.feed.Listen(c.ctx)
	if err != nil {
		return &Error{Kind: KindUnavailable, Op: "subscribe", Err: err}
	}
	c.listening = true
	go c.dispatch(changes)
	return nil
}

func (c *Client) dispatch(changes <-chan Change) {
	for ch := range changes {
		paths := make([]Path, 0, len(ch.Paths))
		for _, s := range ch.Paths {
			p, err := ParsePath(s)
			if err != nil {
				continue
			}
			paths = append(paths, p)
		}
		c.mu.Lock()
		for s := range c.subs {
			for _, p := range paths {
				if s.path.Overlaps(p) {
					s.notify()
					break
				}
			}
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.listening = false
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		applog.Print("recordstore: change feed ended")
	}
}

func (c *Client) addSub(s *Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Errorf(KindUnavailable, "client closed")
	}
	c.subs[s] = struct{}{}
	if c.gauge != nil {
		c.gauge.Inc()
	}
	return nil
}

func (c *Client) removeSub(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[s]; !ok {
		return
	}
	delete(c.subs, s)
	if c.gauge != nil {
		c.gauge.Dec()
	}
}
