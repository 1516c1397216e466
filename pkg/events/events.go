// Package events implements a small in-process pub/sub broker used to
// surface assembly pipeline telemetry (solution and cell lifecycle,
// security rejections, connection installs, mined blocks) to observers
// without coupling the assembler to a sink.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeSolutionAssembling   Type = "solution.assembling"
	TypeSolutionAssembled    Type = "solution.assembled"
	TypeSolutionReleased     Type = "solution.released"
	TypeCellAcquired         Type = "cell.acquired"
	TypeCellActivationFailed Type = "cell.activation_failed"
	TypeCellSecurityRejected Type = "cell.security_rejected"
	TypeConnectionInstalled  Type = "connection.installed"
	TypeConnectionRejected   Type = "connection.rejected"
	TypeLedgerBlockMined     Type = "ledger.block_mined"
)

// Event is a single occurrence published to subscribers.
type Event struct {
	ID         string
	Type       Type
	Timestamp  time.Time
	SolutionID string
	CellID     string
	Message    string
	Metadata   map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker distributes published events to all current subscribers.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers. Non-blocking with
// respect to the broker's internal queue; a stopped broker drops the
// event.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop rather than block the broker
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
