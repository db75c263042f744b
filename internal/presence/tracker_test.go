package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStateIsOffline(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateOffline, tr.StateOf(1), "Неизвестный врач считается offline")
}

func TestSetAvailableIdempotent(t *testing.T) {
	tr := NewTracker()

	assert.NoError(t, tr.SetAvailable(1))
	assert.Equal(t, StateAvailable, tr.StateOf(1))

	// Повторный вызов — no-op, не ошибка.
	assert.NoError(t, tr.SetAvailable(1))
	assert.Equal(t, StateAvailable, tr.StateOf(1))
}

func TestSetAvailableWhileBusy(t *testing.T) {
	tr := NewTracker()

	assert.NoError(t, tr.SetAvailable(1))
	assert.NoError(t, tr.MarkBusy(1))

	err := tr.SetAvailable(1)
	assert.ErrorIs(t, err, ErrDoctorBusy, "Занятый врач не может сменить доступность")
	assert.Equal(t, StateBusy, tr.StateOf(1))
}

func TestMarkBusyRequiresAvailable(t *testing.T) {
	tr := NewTracker()

	err := tr.MarkBusy(1)
	assert.ErrorIs(t, err, ErrNotAvailable, "Offline-врача нельзя занять консультацией")

	assert.NoError(t, tr.SetAvailable(1))
	assert.NoError(t, tr.MarkBusy(1))

	// Повторный MarkBusy — защита от двойного приглашения.
	err = tr.MarkBusy(1)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestMarkFree(t *testing.T) {
	tr := NewTracker()

	tr.SetAvailable(1)
	tr.MarkBusy(1)
	tr.MarkFree(1)
	assert.Equal(t, StateAvailable, tr.StateOf(1), "После консультации врач снова доступен")

	// MarkFree не воскрешает ушедшего в offline врача.
	tr.SetOffline(1)
	tr.MarkFree(1)
	assert.Equal(t, StateOffline, tr.StateOf(1))
}

func TestSetOfflineAlwaysSucceeds(t *testing.T) {
	tr := NewTracker()

	tr.SetAvailable(1)
	tr.MarkBusy(1)

	// Уход в offline и завершение консультации — независимые сигналы.
	tr.SetOffline(1)
	assert.Equal(t, StateOffline, tr.StateOf(1))
}
