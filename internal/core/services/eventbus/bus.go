package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	"github.com/lcalzada-xor/nethealth/internal/telemetry"
)

// Topic names a delivery channel of the bus.
type Topic string

const (
	TopicMetrics  Topic = "metrics"  // payload: domain.Snapshot
	TopicTopology Topic = "topology" // payload: domain.TopologyDiff
	TopicDevices  Topic = "devices"  // payload: []domain.DeviceRecord
	TopicAlerts   Topic = "alerts"   // payload: domain.IntrusionEvent
)

// Topics lists every topic in a fixed order.
var Topics = []Topic{TopicMetrics, TopicTopology, TopicDevices, TopicAlerts}

// Handler receives one payload. A returned error or a panic is isolated.
type Handler func(payload any) error

// SubscriptionID identifies one registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	name    string
	handler Handler
}

// Bus is a synchronous, ordered publish/subscribe hub.
//
// Each topic keeps an immutable slice of subscriptions that is replaced on
// every change, so Publish iterates over the list captured when it started and
// Subscribe/Unsubscribe from inside a handler only affect later publishes.
type Bus struct {
	topics map[Topic]*atomic.Pointer[[]subscription]
	nextID atomic.Uint64
	mu     sync.Mutex // serialises writers
	logger *slog.Logger
}

// New creates a bus with the four standard topics.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		topics: make(map[Topic]*atomic.Pointer[[]subscription], len(Topics)),
		logger: logger,
	}
	for _, t := range Topics {
		p := &atomic.Pointer[[]subscription]{}
		p.Store(&[]subscription{})
		b.topics[t] = p
	}
	return b
}

// Subscribe registers h on topic. Handlers run in registration order.
func (b *Bus) Subscribe(topic Topic, name string, h Handler) (SubscriptionID, error) {
	if h == nil {
		return 0, errors.New("nil handler")
	}
	list, ok := b.topics[topic]
	if !ok {
		return 0, fmt.Errorf("unknown topic %q", topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := SubscriptionID(b.nextID.Add(1))
	cur := *list.Load()
	next := make([]subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscription{id: id, name: name, handler: h})
	list.Store(&next)
	return id, nil
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, list := range b.topics {
		cur := *list.Load()
		for i, s := range cur {
			if s.id != id {
				continue
			}
			next := make([]subscription, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			list.Store(&next)
			return
		}
	}
}

// Count returns the number of handlers registered on topic.
func (b *Bus) Count(topic Topic) int {
	list, ok := b.topics[topic]
	if !ok {
		return 0
	}
	return len(*list.Load())
}

// Publish delivers payload to every handler of topic, in registration order.
// Failing handlers do not stop delivery; their errors are returned joined,
// each wrapping domain.ErrSubscriberFailure.
func (b *Bus) Publish(topic Topic, payload any) error {
	list, ok := b.topics[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}

	var errs []error
	for _, s := range *list.Load() {
		if err := b.deliver(topic, s, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(topic Topic, s subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s on %s: panic: %v", domain.ErrSubscriberFailure, s.name, topic, r)
		}
		if err != nil {
			telemetry.SubscriberFailures.WithLabelValues(string(topic), s.name).Inc()
			b.logger.Warn("subscriber failed", "topic", topic, "subscriber", s.name, "error", err)
		}
	}()

	if herr := s.handler(payload); herr != nil {
		return fmt.Errorf("%w: %s on %s: %v", domain.ErrSubscriberFailure, s.name, topic, herr)
	}
	return nil
}

// Attach registers the four callbacks of a ports.Subscriber and returns their ids.
func (b *Bus) Attach(name string, sub ports.Subscriber) []SubscriptionID {
	handlers := map[Topic]Handler{
		TopicMetrics: func(p any) error {
			snap, ok := p.(domain.Snapshot)
			if !ok {
				return fmt.Errorf("unexpected payload %T", p)
			}
			return sub.OnMetrics(snap)
		},
		TopicTopology: func(p any) error {
			diff, ok := p.(domain.TopologyDiff)
			if !ok {
				return fmt.Errorf("unexpected payload %T", p)
			}
			return sub.OnTopology(diff)
		},
		TopicDevices: func(p any) error {
			devices, ok := p.([]domain.DeviceRecord)
			if !ok {
				return fmt.Errorf("unexpected payload %T", p)
			}
			return sub.OnDevices(devices)
		},
		TopicAlerts: func(p any) error {
			ev, ok := p.(domain.IntrusionEvent)
			if !ok {
				return fmt.Errorf("unexpected payload %T", p)
			}
			return sub.OnAlert(ev)
		},
	}

	ids := make([]SubscriptionID, 0, len(Topics))
	for _, t := range Topics {
		// Topics are fixed and handlers non-nil: Subscribe cannot fail here.
		id, _ := b.Subscribe(t, name, handlers[t])
		ids = append(ids, id)
	}
	return ids
}

// Detach unsubscribes every id returned by Attach.
func (b *Bus) Detach(ids []SubscriptionID) {
	for _, id := range ids {
		b.Unsubscribe(id)
	}
}

// NopSubscriber implements ports.Subscriber with no-ops; embed it to handle a subset of topics.
type NopSubscriber struct{}

func (NopSubscriber) OnMetrics(domain.Snapshot) error       { return nil }
func (NopSubscriber) OnTopology(domain.TopologyDiff) error  { return nil }
func (NopSubscriber) OnDevices([]domain.DeviceRecord) error { return nil }
func (NopSubscriber) OnAlert(domain.IntrusionEvent) error   { return nil }

var _ ports.Subscriber = NopSubscriber{}
