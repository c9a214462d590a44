// internal/service/event_bus.go
package service

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"micmgmt-service/internal/model"
)

const (
	eventQueueSize      = 1000
	subscriberQueueSize = 100
)

type subscriber struct {
	events chan model.DeviceEvent
	types  []model.EventType
}

func (s *subscriber) wants(eventType model.EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// EventBus fans device events out to subscribers. Slow subscribers miss
// events instead of blocking publishers.
type EventBus struct {
	subscribers map[*subscriber]struct{}
	events      chan model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[*subscriber]struct{}),
		events:      make(chan model.DeviceEvent, eventQueueSize),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start distributes published events until ctx is done.
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event without blocking.
func (eb *EventBus) Publish(event model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("device", event.DeviceName),
		)
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The returned function unsubscribes and
// closes the channel.
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan model.DeviceEvent, func()) {
	sub := &subscriber{
		events: make(chan model.DeviceEvent, subscriberQueueSize),
		types:  types,
	}

	eb.mutex.Lock()
	eb.subscribers[sub] = struct{}{}
	eb.mutex.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, sub)
			eb.mutex.Unlock()
			close(sub.events)
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

func (eb *EventBus) distributeEvent(event model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for sub := range eb.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
