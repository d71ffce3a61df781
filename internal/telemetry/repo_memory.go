package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

// Repository is the funnel log behind the stats endpoint: welcome views,
// registrations, page mounts and flag outcomes.
type Repository interface {
	RecordEvent(eventType EventType, metadata EventMetadata) error
	GetEvents(since time.Time, eventTypes []EventType) ([]Event, error)
	Clear() error
}

// MemoryRepository keeps a bounded window of events in memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []Event
	nextID int
	limit  int
	now    func() time.Time
}

// DefaultLimit caps how many events a MemoryRepository retains.
const DefaultLimit = 10000

func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithLimit(DefaultLimit)
}

// NewMemoryRepositoryWithLimit drops the oldest events beyond limit.
// limit <= 0 keeps everything.
func NewMemoryRepositoryWithLimit(limit int) *MemoryRepository {
	return &MemoryRepository{
		events: make([]Event, 0),
		nextID: 1,
		limit:  limit,
		now:    time.Now,
	}
}

// RecordEvent appends one funnel event stamped with the repository clock.
// Metadata is stored as its JSON encoding.
func (r *MemoryRepository) RecordEvent(eventType EventType, metadata EventMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	event := Event{
		ID:        r.nextID,
		Type:      eventType,
		Timestamp: r.now(),
		Metadata:  string(metadataJSON),
	}

	r.events = append(r.events, event)
	r.nextID++
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append(r.events[:0:0], r.events[len(r.events)-r.limit:]...)
	}

	return nil
}

// GetEvents returns events at or after since, oldest first. An empty
// eventTypes matches every type.
func (r *MemoryRepository) GetEvents(since time.Time, eventTypes []EventType) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeFilter := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeFilter[t] = true
	}

	result := make([]Event, 0)
	for _, event := range r.events {
		if event.Timestamp.Before(since) {
			continue
		}
		if len(eventTypes) > 0 && !typeFilter[event.Type] {
			continue
		}
		result = append(result, event)
	}

	return result, nil
}

// Clear drops every event and restarts ids at 1.
func (r *MemoryRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make([]Event, 0)
	r.nextID = 1

	return nil
}
