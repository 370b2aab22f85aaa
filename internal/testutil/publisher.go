package testutil

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// PublishedEvent is one captured lifecycle event.
type PublishedEvent struct {
	Name    string
	Payload any
}

// CapturingPublisher records lifecycle events for assertions.
type CapturingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func NewCapturingPublisher() *CapturingPublisher {
	return &CapturingPublisher{}
}

func (p *CapturingPublisher) Publish(ctx context.Context, eventName string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Name: eventName, Payload: payload})
	return nil
}

func (p *CapturingPublisher) Close() error {
	return nil
}

// Events returns a copy of everything published so far.
func (p *CapturingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]PublishedEvent, len(p.events))
	copy(events, p.events)
	return events
}

// Names returns the published event names in order.
func (p *CapturingPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Map(p.events, func(e PublishedEvent, _ int) string { return e.Name })
}

// HasEvent reports whether an event with the name was published.
func (p *CapturingPublisher) HasEvent(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.ContainsBy(p.events, func(e PublishedEvent) bool { return e.Name == name })
}

// Reset clears captured events.
func (p *CapturingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
