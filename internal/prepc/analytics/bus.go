package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Topic is the pub/sub topic analytics events are published on
const Topic = "analytics.events"

// QueueSize is the number of events Record buffers before dropping
const QueueSize = 256

// Bus publishes events on an in-process pub/sub and feeds them to a Tracker
// from a single subscriber goroutine. Record only enqueues; a publisher
// goroutine drains the queue in order.
type Bus struct {
	tracker *Tracker
	pubSub  *gochannel.GoChannel
	now     func() time.Time

	queue     chan *message.Message
	published chan struct{}

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewBus subscribes to Topic and starts delivering events to tracker
func NewBus(tracker *Tracker, logger zerolog.Logger) (*Bus, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		// Delivery order matches publishing order.
		BlockPublishUntilSubscriberAck: true,
	}, NewWatermillLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := pubSub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		_ = pubSub.Close()
		return nil, err
	}

	b := &Bus{
		tracker:   tracker,
		pubSub:    pubSub,
		now:       tracker.now,
		queue:     make(chan *message.Message, QueueSize),
		published: make(chan struct{}),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go b.run(messages)
	go b.publish()
	return b, nil
}

func (b *Bus) publish() {
	defer close(b.published)
	for msg := range b.queue {
		if err := b.pubSub.Publish(Topic, msg); err != nil {
			log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Failed to publish analytics event")
			continue
		}
		log.Trace().Str("topic", Topic).Str("message_uuid", msg.UUID).Msg("Published analytics event")
	}
}

func (b *Bus) run(messages <-chan *message.Message) {
	defer close(b.done)
	for msg := range messages {
		var event Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed analytics event")
			msg.Ack()
			continue
		}
		b.tracker.Append(event)
		msg.Ack()
	}
}

// Record queues an event stamped with the current time. It never waits for
// the tracker; when the queue is full the event is dropped.
func (b *Bus) Record(eventType string, metadata map[string]interface{}) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: b.now().UnixMilli(),
		Metadata:  metadata,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal analytics event")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		log.Warn().Str("event_type", eventType).Msg("Analytics bus closed, dropping event")
		return
	}
	select {
	case b.queue <- message.NewMessage(watermill.NewUUID(), payload):
	default:
		log.Warn().Str("event_type", eventType).Msg("Analytics queue full, dropping event")
	}
}

// Close delivers the queued events, then stops the subscriber and releases
// the pub/sub
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.published
	err := b.pubSub.Close()
	b.cancel()
	<-b.done
	return err
}
