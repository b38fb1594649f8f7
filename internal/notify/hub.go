// Package notify доставляет пользователю уведомления о результатах его действий.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// DefaultCapacity задаёт, сколько недоставленных уведомлений хранится на пользователя.
const DefaultCapacity = 50

// Notifier принимает уведомления для пользователя.
type Notifier interface {
	Notify(userID int64, level model.NotificationLevel, message string)
}

// Subscription описывает подписку живого соединения на уведомления пользователя.
type Subscription struct {
	C      chan model.Notification
	userID int64
}

// Hub хранит недоставленные уведомления и рассылает новые живым подпискам.
// Если ни одна подписка не приняла уведомление, оно остаётся в очереди до Drain.
type Hub struct {
	mu          sync.Mutex
	capacity    int
	pending     map[int64][]model.Notification
	subscribers map[int64]map[*Subscription]struct{}
	logger      *zap.Logger
	now         func() time.Time
}

// NewHub создаёт хаб с очередью указанной ёмкости на пользователя.
func NewHub(capacity int, logger *zap.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		capacity:    capacity,
		pending:     make(map[int64][]model.Notification),
		subscribers: make(map[int64]map[*Subscription]struct{}),
		logger:      logger,
		now:         time.Now,
	}
}

// Notify создаёт уведомление и доставляет его подпискам или ставит в очередь.
func (h *Hub) Notify(userID int64, level model.NotificationLevel, message string) {
	n := model.Notification{
		ID:        uuid.New(),
		Level:     level,
		Message:   message,
		CreatedAt: h.now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for sub := range h.subscribers[userID] {
		select {
		case sub.C <- n:
			delivered = true
		default:
			h.logger.Warn("notification subscriber is slow, dropping message", zap.Int64("userID", userID))
		}
	}
	if delivered {
		return
	}

	q := append(h.pending[userID], n)
	if len(q) > h.capacity {
		q = q[len(q)-h.capacity:]
	}
	h.pending[userID] = q
}

// Drain возвращает накопленные уведомления пользователя и очищает очередь.
func (h *Hub) Drain(userID int64) []model.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := h.pending[userID]
	delete(h.pending, userID)
	return q
}

// Subscribe регистрирует живое соединение. Накопленные уведомления сразу передаются в канал,
// пока хватает буфера.
func (h *Hub) Subscribe(userID int64, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = h.capacity
	}
	sub := &Subscription{C: make(chan model.Notification, buffer), userID: userID}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*Subscription]struct{})
	}
	h.subscribers[userID][sub] = struct{}{}

	q := h.pending[userID]
	sent := 0
	for _, n := range q {
		select {
		case sub.C <- n:
			sent++
		default:
		}
	}
	if sent == len(q) {
		delete(h.pending, userID)
	} else {
		h.pending[userID] = q[sent:]
	}

	return sub
}

// Unsubscribe снимает подписку и закрывает её канал.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sub.userID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, sub.userID)
	}
	close(sub.C)
}
