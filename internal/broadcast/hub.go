package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSubscriberBuffer = 64
	DefaultSendTimeout      = 250 * time.Millisecond
)

// Publisher delivers a message to whoever listens on topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Subscription is one listener attached to a topic.
// C never closes; Done is closed once the subscription ends.
type Subscription struct {
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

// C returns the delivery channel
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Done is closed when the subscription is cancelled or dropped as too slow
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	return s.topic
}

// Close detaches the subscription from its hub
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) end() bool {
	ended := false
	s.once.Do(func() {
		close(s.done)
		ended = true
	})
	return ended
}

// Hub is the in-process fan-out of messages to live subscribers.
// It keeps no history: a subscriber only sees messages published after it attached.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[*Subscription]struct{}
	bufferSize  int
	sendTimeout time.Duration
	closed      bool
}

// HubOption customizes a Hub
type HubOption func(*Hub)

// WithSubscriberBuffer sets the per-subscriber channel capacity
func WithSubscriberBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithSendTimeout bounds how long Publish waits on a full subscriber before dropping it
func WithSendTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) {
		if timeout >= 0 {
			h.sendTimeout = timeout
		}
	}
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:      make(map[string]map[*Subscription]struct{}),
		bufferSize:  DefaultSubscriberBuffer,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe attaches a new listener to topic. On a closed hub the
// returned subscription is already done.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan Message, h.bufferSize),
		done:  make(chan struct{}),
		hub:   h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.end()
		return sub
	}

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	log.Debug().Str("topic", topic).Int("subscribers", len(subs)).Msg("Subscriber attached")
	return sub
}

// Unsubscribe detaches sub; calling it more than once is harmless
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub)
	sub.end()
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}

// SubscriberCount returns the number of live subscribers on topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish delivers msg to every subscriber attached at the time of the call.
// A subscriber whose buffer stays full past the send timeout is dropped.
// Once ctx is done, full subscribers are skipped rather than waited on, but
// every subscriber with buffer room still receives msg; ctx.Err() is then
// returned. Publishing to a topic with no subscribers is a no-op.
func (h *Hub) Publish(ctx context.Context, topic string, msg Message) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	subs := make([]*Subscription, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	var (
		deadline <-chan time.Time
		ctxErr   error
	)
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
			continue
		case <-sub.done:
			continue
		default:
		}

		if ctxErr != nil {
			continue
		}

		// All slow subscribers share one deadline so a publish is bounded by
		// sendTimeout regardless of how many of them are stalled.
		if deadline == nil {
			timer := time.NewTimer(h.sendTimeout)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-deadline:
			deadline = closedTimeChan
			h.drop(sub, "send timeout")
		case <-ctx.Done():
			ctxErr = ctx.Err()
		}
	}

	return ctxErr
}

func (h *Hub) drop(sub *Subscription, reason string) {
	h.remove(sub)
	if sub.end() {
		log.Warn().Str("topic", sub.topic).Str("reason", reason).Msg("Dropped slow subscriber")
	}
}

// Close ends every subscription; later publishes fail with ErrHubClosed
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.end()
		}
	}
}

// closedTimeChan is a receive-ready channel used once the shared deadline has passed
var closedTimeChan = func() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}()
