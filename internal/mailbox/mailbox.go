// Package mailbox реализует одноместный почтовый ящик, через который идентификатор
// переживает уход пользователя на внешнюю платёжную страницу и возврат обратно.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Slot задаёт имя ячейки почтового ящика.
type Slot string

const (
	// SlotCheckoutDeal хранит идентификатор сделки, ушедшей на оплату.
	SlotCheckoutDeal Slot = "lastCheckoutDealId"
	// SlotInspectionOrder хранит идентификатор заказа проверки, ожидающего оплаты.
	SlotInspectionOrder Slot = "pendingInspectionOrderId"
)

// ErrUnknownSlot возвращается для ячейки, которую сервис не использует.
var ErrUnknownSlot = errors.New("unknown mailbox slot")

// Valid сообщает, что ячейка известна сервису.
func (s Slot) Valid() bool {
	return s == SlotCheckoutDeal || s == SlotInspectionOrder
}

// Store описывает хранилище ячеек. Put перезаписывает значение, Take читает и очищает ячейку атомарно.
type Store interface {
	Put(ctx context.Context, userID int64, slot Slot, value string) error
	Take(ctx context.Context, userID int64, slot Slot) (string, bool, error)
	Clear(ctx context.Context, userID int64, slot Slot) error
}

// PutID кладёт числовой идентификатор в ячейку.
func PutID(ctx context.Context, s Store, userID int64, slot Slot, id int64) error {
	return s.Put(ctx, userID, slot, strconv.FormatInt(id, 10))
}

// TakeID забирает числовой идентификатор из ячейки. Нечисловое значение считается отсутствующим.
func TakeID(ctx context.Context, s Store, userID int64, slot Slot) (int64, bool, error) {
	raw, ok, err := s.Take(ctx, userID, slot)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

type memoryKey struct {
	userID int64
	slot   Slot
}

// Memory хранит ячейки в памяти процесса. Подходит для тестов и локального запуска.
type Memory struct {
	mu    sync.Mutex
	slots map[memoryKey]string
}

// NewMemory создаёт пустой почтовый ящик в памяти.
func NewMemory() *Memory {
	return &Memory{slots: make(map[memoryKey]string)}
}

// Put сохраняет значение, перезаписывая предыдущее.
func (m *Memory) Put(_ context.Context, userID int64, slot Slot, value string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[memoryKey{userID, slot}] = value
	return nil
}

// Take возвращает значение и очищает ячейку.
func (m *Memory) Take(_ context.Context, userID int64, slot Slot) (string, bool, error) {
	if !slot.Valid() {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey{userID, slot}
	v, ok := m.slots[k]
	delete(m.slots, k)
	return v, ok, nil
}

// Clear очищает ячейку.
func (m *Memory) Clear(_ context.Context, userID int64, slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, memoryKey{userID, slot})
	return nil
}
