// Package messaging is the Crawl Engine's Event Sink: a typed broadcaster
// decoupling crawl/query progress reporting from whatever transport ends up
// carrying it (spec §4.10). Grounded on codepr-webcrawler's
// messaging/queue.go and messaging/channelqueue.go Producer/Consumer/Closer
// shape, adapted from that package's generic byte-channel queue into a
// sink built directly around the crawler's own Event type: there is exactly
// one thing this package ever moves, so the contract names it instead of
// staying generic over []byte.
package messaging

import (
	"errors"
	"log"
	"sync"
)

// EventStatus is the tag spec §6 enumerates for Event Sink payloads.
type EventStatus string

const (
	StatusWelcome      EventStatus = "welcome"
	StatusConnected    EventStatus = "connected"
	StatusStarted      EventStatus = "started"
	StatusCrawling     EventStatus = "crawling"
	StatusProgress     EventStatus = "progress"
	StatusCompleted    EventStatus = "completed"
	StatusTerminated   EventStatus = "terminated"
	StatusStopping     EventStatus = "stopping"
	StatusStopped      EventStatus = "stopped"
	StatusForceStopped EventStatus = "force_stopped"
	StatusReset        EventStatus = "reset"
	StatusWarning      EventStatus = "warning"
	StatusError        EventStatus = "error"
	StatusTest         EventStatus = "test"
	StatusPing         EventStatus = "ping"
	StatusPong         EventStatus = "pong"
)

// Event is one progress/status payload the Crawl Engine hands to a Sink
// (spec §4.10, §6 "Event sink payloads").
type Event struct {
	Status    EventStatus `json:"status"`
	URL       string      `json:"url,omitempty"`
	Stats     interface{} `json:"stats,omitempty"`
	Elapsed   float64     `json:"elapsed,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}

// IsLiveness reports whether e is ping/pong traffic, which callers should
// still deliver but exclude from log output (spec §4.10).
func (e Event) IsLiveness() bool {
	return e.Status == StatusPing || e.Status == StatusPong
}

// ErrSinkClosed is returned by Produce once the sink has been closed.
var ErrSinkClosed = errors.New("messaging: sink closed")

// EventProducer enqueues an Event for delivery to subscribers, the
// crawler-domain-typed counterpart of a generic byte-queue producer.
type EventProducer interface {
	Produce(Event) error
}

// EventConsumer connects to a sink, blocking while it forwards delivered
// Events onto out, until the sink closes.
type EventConsumer interface {
	Consume(out chan<- Event) error
}

// EventProducerConsumerCloser is the full contract a Sink's transport
// implements: produce, consume, and release on shutdown.
type EventProducerConsumerCloser interface {
	EventProducer
	EventConsumer
	Close()
}

// Sink is the abstract broadcaster the Crawl Engine emits progress events
// to; it owns all transport/back-pressure concerns (spec §4.10).
type Sink interface {
	Emit(Event)
}

// ChannelEventSink is an in-process Sink backed directly by a channel of
// Events: no byte-marshaling hop, since producer and consumer both live in
// the same process and already share the typed Event.
type ChannelEventSink struct {
	bus chan Event

	mu     sync.Mutex
	closed bool
}

// NewChannelEventSink creates a ready-to-use in-process Sink.
func NewChannelEventSink() *ChannelEventSink {
	return &ChannelEventSink{bus: make(chan Event)}
}

var _ EventProducerConsumerCloser = (*ChannelEventSink)(nil)

// Emit logs e (skipping ping/pong liveness noise per spec §4.10) and
// forwards it to any subscriber. Produce errors are logged and dropped
// rather than propagated, since a broadcaster fault must never interrupt
// the crawl loop (spec §9 "no exception escapes an iteration").
func (s *ChannelEventSink) Emit(e Event) {
	if !e.IsLiveness() {
		log.Printf("eventsink: %s %s", e.Status, e.URL)
	}
	if err := s.Produce(e); err != nil {
		log.Println("eventsink: produce failed:", err)
	}
}

// Produce delivers e to the sink's channel, satisfying EventProducer.
func (s *ChannelEventSink) Produce(e Event) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.mu.Unlock()
	// A Close that runs while this send is blocked closes bus under it;
	// report that as a closed sink instead of panicking.
	defer func() {
		if recover() != nil {
			err = ErrSinkClosed
		}
	}()
	s.bus <- e
	return nil
}

// Consume forwards every Event delivered to the sink onto out until the
// sink is closed, satisfying EventConsumer.
func (s *ChannelEventSink) Consume(out chan<- Event) error {
	for e := range s.bus {
		out <- e
	}
	return nil
}

// Subscribe is an alias for Consume, read more naturally at call sites that
// treat the sink as a subscription rather than a queue endpoint.
func (s *ChannelEventSink) Subscribe(out chan<- Event) error {
	return s.Consume(out)
}

// Close shuts the sink down; any blocked Produce/Consume unblocks.
func (s *ChannelEventSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.bus)
}
