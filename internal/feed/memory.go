package feed

import (
	"context"
	"sync"

	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const memoryTransport = "memory"

// Memory is an in-process hub. Publish never blocks on slow subscribers:
// each subscription buffers events in an unbounded queue drained by its
// own goroutine.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
	logger *logging.Logger
}

// NewMemory creates an empty hub
func NewMemory(logger *logging.Logger) *Memory {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Memory{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		logger: logger.WithComponent("feed").WithField("transport", memoryTransport),
	}
}

// Subscribe registers handler for events on table. ctx only bounds the
// registration; delivery continues until Unsubscribe.
func (m *Memory) Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		hub:     m,
		table:   table,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subs[table] == nil {
		m.subs[table] = make(map[*memorySubscription]struct{})
	}
	m.subs[table][sub] = struct{}{}
	m.mu.Unlock()

	metrics.FeedSubscriptionsActive.WithLabelValues(memoryTransport).Inc()
	go sub.run()

	m.logger.WithField("table", table).Debug("Subscription opened")
	return sub, nil
}

// Publish queues event for every subscriber of event.Table. Each subscriber
// gets its own copy of the record.
func (m *Memory) Publish(ctx context.Context, event models.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordFeedPublish(memoryTransport, string(event.Kind), err)
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		metrics.RecordFeedPublish(memoryTransport, string(event.Kind), ErrClosed)
		return ErrClosed
	}
	targets := make([]*memorySubscription, 0, len(m.subs[event.Table]))
	for sub := range m.subs[event.Table] {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	for _, sub := range targets {
		copied := event
		copied.Record = event.Record.Clone()
		sub.enqueue(copied)
	}

	metrics.RecordFeedPublish(memoryTransport, string(event.Kind), nil)
	m.logger.LogFeedEvent("publish", string(event.Kind), event.Table, event.RecordID())
	return nil
}

// Close ends every subscription and rejects further use of the hub
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySubscription
	for _, subs := range m.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range all {
		_ = sub.Unsubscribe()
	}
	return nil
}

func (m *Memory) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs[sub.table], sub)
	if len(m.subs[sub.table]) == 0 {
		delete(m.subs, sub.table)
	}
}

type memorySubscription struct {
	hub     *Memory
	table   string
	handler Handler

	mu    sync.Mutex
	queue []models.ChangeEvent

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *memorySubscription) enqueue(event models.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) next() (models.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return models.ChangeEvent{}, false
	}
	event := s.queue[0]
	s.queue[0] = models.ChangeEvent{}
	s.queue = s.queue[1:]
	return event, true
}

func (s *memorySubscription) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			select {
			case <-s.done:
				return
			default:
			}

			event, ok := s.next()
			if !ok {
				break
			}
			metrics.RecordFeedDelivery(memoryTransport, string(event.Kind))
			s.handler(event)
		}
	}
}

// Unsubscribe stops delivery and waits for an in-flight handler to return.
// It must not be called from inside the subscription's own handler.
func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
		metrics.FeedSubscriptionsActive.WithLabelValues(memoryTransport).Dec()
	})
	<-s.stopped
	return nil
}
