package presence

import (
	"errors"
	"sync"
)

// State — статус присутствия врача.
type State string

const (
	StateOffline   State = "offline"
	StateAvailable State = "available"
	StateBusy      State = "busy"
)

var (
	// ErrDoctorBusy — врач ведёт консультацию, смена доступности запрещена.
	ErrDoctorBusy = errors.New("врач занят консультацией")
	// ErrNotAvailable — врач не в статусе available, приглашение невозможно.
	ErrNotAvailable = errors.New("врач не принимает пациентов")
)

// Tracker хранит статусы присутствия врачей.
// Переходы в Busy и обратно делает только жизненный цикл консультации,
// врач сам переключается лишь между Offline и Available.
type Tracker struct {
	mu     sync.RWMutex
	states map[uint]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[uint]State)}
}

// SetAvailable переводит врача в Available.
// Повторный вызов для уже доступного врача — no-op, из Busy переход запрещён.
func (t *Tracker) SetAvailable(doctorID uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[doctorID] == StateBusy {
		return ErrDoctorBusy
	}
	t.states[doctorID] = StateAvailable
	return nil
}

// SetOffline переводит врача в Offline. Всегда успешен.
// Активную консультацию врача этот вызов не трогает: уход в offline и
// завершение консультации — независимые сигналы. Offline лишь запрещает
// новые приглашения после того, как текущая консультация закончится.
func (t *Tracker) SetOffline(doctorID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, doctorID)
}

// MarkBusy переводит врача в Busy на время консультации.
// Защита от двойного приглашения: только Available-врач может стать Busy.
func (t *Tracker) MarkBusy(doctorID uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[doctorID] != StateAvailable {
		return ErrNotAvailable
	}
	t.states[doctorID] = StateBusy
	return nil
}

// MarkFree возвращает врача из Busy в Available.
// Если врач успел уйти в offline, статус не трогаем.
func (t *Tracker) MarkFree(doctorID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[doctorID] == StateBusy {
		t.states[doctorID] = StateAvailable
	}
}

// StateOf возвращает текущий статус врача. Неизвестный врач — Offline.
func (t *Tracker) StateOf(doctorID uint) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.states[doctorID]; ok {
		return s
	}
	return StateOffline
}
