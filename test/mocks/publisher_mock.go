package mocks

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mashoras/activity-service/internal/core/ports"
)

// MockNotifier implements ports.Notifier for testing.
// This mock allows us to test the observers without a real RabbitMQ connection.
type MockNotifier struct {
	mu sync.RWMutex

	// Track delivered notifications for verification
	Delivered []ports.Notification

	// Error injection for testing error scenarios
	ShowError error

	// Track number of calls
	ShowCallCount int
}

var _ ports.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Delivered: make([]ports.Notification, 0)}
}

func (m *MockNotifier) ShowNotification(ctx context.Context, n ports.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ShowCallCount++
	if m.ShowError != nil {
		return m.ShowError
	}
	m.Delivered = append(m.Delivered, n)
	return nil
}

// Notifications returns a copy of the delivered notifications.
func (m *MockNotifier) Notifications() []ports.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ports.Notification, len(m.Delivered))
	copy(out, m.Delivered)
	return out
}

func (m *MockNotifier) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ShowCallCount
}

// WaitForCalls polls until at least n deliveries were attempted.
func (m *MockNotifier) WaitForCalls(n int, timeout time.Duration) bool {
	return waitUntil(timeout, func() bool { return m.Calls() >= n })
}

// MockAMQPChannel records publishes in place of an *amqp.Channel.
type MockAMQPChannel struct {
	mu           sync.Mutex
	Published    []amqp.Publishing
	RoutingKeys  []string
	PublishError error
}

func NewMockAMQPChannel() *MockAMQPChannel {
	return &MockAMQPChannel{}
}

func (m *MockAMQPChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishError != nil {
		return m.PublishError
	}
	m.Published = append(m.Published, msg)
	m.RoutingKeys = append(m.RoutingKeys, key)
	return nil
}

func (m *MockAMQPChannel) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}
