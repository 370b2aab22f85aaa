package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/types"
)

// InMemoryScheduleStore is an in-memory implementation of schedule.Repository.
type InMemoryScheduleStore struct {
	mu     sync.RWMutex
	events map[string]*schedule.Event
}

func NewInMemoryScheduleStore() *InMemoryScheduleStore {
	return &InMemoryScheduleStore{events: make(map[string]*schedule.Event)}
}

func tripleKey(hook, ownerID string, key types.SubscriptionKey) string {
	return hook + "|" + ownerID + "|" + key.String()
}

func (s *InMemoryScheduleStore) Upsert(ctx context.Context, event *schedule.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec := *event
	s.events[tripleKey(event.Hook, event.OwnerID, event.Key)] = &ec
	return nil
}

func (s *InMemoryScheduleStore) Delete(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, tripleKey(hook, ownerID, key))
	return nil
}

func (s *InMemoryScheduleStore) Get(ctx context.Context, hook, ownerID string, key types.SubscriptionKey) (*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[tripleKey(hook, ownerID, key)]
	if !ok {
		return nil, nil
	}
	ec := *event
	return &ec, nil
}

func (s *InMemoryScheduleStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*schedule.Event
	for _, event := range s.events {
		if !event.FireAt.After(now) {
			ec := *event
			due = append(due, &ec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Count reports how many events are pending. Test helper.
func (s *InMemoryScheduleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
