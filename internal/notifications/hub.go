package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventActionsProposed  = "actions_proposed"
	EventActionsApplied   = "actions_applied"
	EventObservedTransfer = "observed_transfer"
)

type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Hub рассылает события всем подключенным участникам домохозяйства.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan Event]struct{}
}

// NewHub создает хаб для SSE-подписок.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Subscribe подписывает на события домохозяйства и возвращает канал и функцию отписки.
func (h *Hub) Subscribe(householdID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 10)

	h.mu.Lock()
	defer h.mu.Unlock()

	householdSubs, ok := h.subscribers[householdID]
	if !ok {
		householdSubs = make(map[chan Event]struct{})
		h.subscribers[householdID] = householdSubs
	}
	householdSubs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if subs, exists := h.subscribers[householdID]; exists {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, householdID)
			}
		}
		close(ch)
	}
}

// Publish отправляет событие всем подписчикам домохозяйства.
// Медленный подписчик событие пропускает, доставка не гарантируется.
func (h *Hub) Publish(householdID uuid.UUID, event Event) {
	event.Timestamp = time.Now().UTC()

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[householdID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
