package classroom

import (
	"context"
	"strings"
	"time"

	"classroom/internal/applog"
	"classroom/internal/recordstore"
)

// ImageOffloader queues an inline image stored in field at every path for
// transfer to the object store.
type ImageOffloader interface {
	Offload(ctx context.Context, field string, paths ...recordstore.Path) error
}

// Service implements the classroom operations for the caller found in ctx.
type Service struct {
	store        *recordstore.Client
	defaultImage string
	linkBase     string
	images       ImageOffloader
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultImage overrides DefaultCourseImage.
func WithDefaultImage(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultImage = name
		}
	}
}

// WithLinkBase sets the page that course links point at.
func WithLinkBase(base string) Option {
	return func(s *Service) { s.linkBase = base }
}

// WithImageOffloader enables moving inline images to the object store.
func WithImageOffloader(o ImageOffloader) Option {
	return func(s *Service) { s.images = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service over store.
func NewService(store *recordstore.Client, opts ...Option) *Service {
	s := &Service{
		store:        store,
		defaultImage: DefaultCourseImage,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// offload hands an inline data URL to the offloader. Failures are logged;
// the record already holds the inline image.
func (s *Service) offload(ctx context.Context, field, value string, paths ...recordstore.Path) {
	if s.images == nil || !strings.HasPrefix(value, "data:") {
		return
	}
	if err := s.images.Offload(ctx, field, paths...); err != nil {
		applog.Printf("classroom: queue %s offload for %v: %v", field, paths, err)
	}
}

// watchList decodes every change at p into a list for fn.
func watchList[T any](ctx context.Context, s *Service, p recordstore.Path, setID func(*T, string), fn func([]T), onErr func(error)) (*recordstore.Subscription, error) {
	var opts []recordstore.SubscribeOption
	if onErr != nil {
		opts = append(opts, recordstore.OnError(onErr))
	}
	return s.store.Subscribe(ctx, p, func(snap recordstore.Snapshot) {
		items, err := decodeChildren(snap, setID)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(items)
	}, opts...)
}
