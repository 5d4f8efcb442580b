package coursestore

import (
	"context"
	"sync"
)

// PublishListener receives course-publish notifications.
type PublishListener func(ctx context.Context, key CourseKey)

// Dispatcher decides how a listener invocation is delivered. The default
// dispatcher calls the listener synchronously; callers integrating a task
// queue can substitute their own.
type Dispatcher func(ctx context.Context, listener PublishListener, key CourseKey)

// PublishSignal is a registry of course-publish listeners. It replaces
// framework-level signal wiring with an explicit subscription list.
type PublishSignal struct {
	mu         sync.RWMutex
	listeners  []PublishListener
	dispatcher Dispatcher
}

// SignalOption configures a PublishSignal.
type SignalOption func(*PublishSignal)

// WithDispatcher overrides the delivery mechanism for listener invocations.
func WithDispatcher(d Dispatcher) SignalOption {
	return func(s *PublishSignal) {
		s.dispatcher = d
	}
}

// NewPublishSignal creates an empty publish-signal registry.
func NewPublishSignal(opts ...SignalOption) *PublishSignal {
	s := &PublishSignal{
		dispatcher: func(ctx context.Context, l PublishListener, key CourseKey) {
			l(ctx, key)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for course-publish events.
func (s *PublishSignal) Subscribe(l PublishListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// CoursePublished notifies every subscribed listener that the course was
// published. Delivery order follows subscription order.
func (s *PublishSignal) CoursePublished(ctx context.Context, key CourseKey) {
	s.mu.RLock()
	listeners := make([]PublishListener, len(s.listeners))
	copy(listeners, s.listeners)
	dispatch := s.dispatcher
	s.mu.RUnlock()

	for _, l := range listeners {
		dispatch(ctx, l, key)
	}
}
