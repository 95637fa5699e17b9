package memory

import (
	"context"
	"sort"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// timelineRepository хранит события в памяти (для разработки/тестов).
type timelineRepository struct {
	v view
}

// Append добавляет событие в хранилище.
func (r timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	return r.v.write(func(st *state) error {
		events := append(st.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		st.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.v.read(func(st *state) error {
		events := st.timeline[orderID]
		result = make([]domain.TimelineEvent, len(events))
		copy(result, events)
		return nil
	})
	return result, err
}

var _ domain.TimelineRepository = timelineRepository{}
