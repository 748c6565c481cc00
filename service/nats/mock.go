package nats

import (
	"context"
	"sync"
)

// MockPublisher is an in-memory Publisher for tests.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*ClassificationEvent
	publishError    error
	batchError      error
	closed          bool
}

// NewMockPublisher creates a mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ClassificationEvent, 0),
	}
}

// PublishClassification records the event and returns any configured error.
func (m *MockPublisher) PublishClassification(_ context.Context, event *ClassificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishClassificationBatch records the events and returns any configured error.
func (m *MockPublisher) PublishClassificationBatch(_ context.Context, events []*ClassificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchError != nil {
		return m.batchError
	}
	m.publishedEvents = append(m.publishedEvents, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PublishedEvents returns a copy of all published events.
func (m *MockPublisher) PublishedEvents() []*ClassificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ClassificationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// EventsForWallet returns the events published for one wallet.
func (m *MockPublisher) EventsForWallet(address string) []*ClassificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ClassificationEvent, 0)
	for _, event := range m.publishedEvents {
		if event.WalletAddress == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures PublishClassification to fail.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetBatchError configures PublishClassificationBatch to fail.
func (m *MockPublisher) SetBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchError = err
}

// Reset clears recorded events and configured errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*ClassificationEvent, 0)
	m.publishError = nil
	m.batchError = nil
	m.closed = false
}

// IsClosed reports whether Close was called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ Publisher = (*MockPublisher)(nil)
