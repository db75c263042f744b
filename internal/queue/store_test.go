package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueOrder(t *testing.T) {
	s := NewStore()

	pos, err := s.Enqueue(1, 10, "room-a")
	assert.NoError(t, err, "Первый пациент должен встать в очередь")
	assert.Equal(t, 1, pos, "Первый пациент должен получить позицию 1")

	pos, err = s.Enqueue(1, 11, "room-b")
	assert.NoError(t, err)
	assert.Equal(t, 2, pos, "Второй пациент должен получить позицию 2")

	pos, err = s.Enqueue(1, 12, "room-c")
	assert.NoError(t, err)
	assert.Equal(t, 3, pos)

	snapshot := s.Snapshot(1)
	assert.Len(t, snapshot, 3)
	assert.Equal(t, uint(10), snapshot[0].PatientID, "Порядок очереди должен совпадать с порядком вступления")
	assert.Equal(t, uint(11), snapshot[1].PatientID)
	assert.Equal(t, uint(12), snapshot[2].PatientID)
	assert.True(t, snapshot[0].JoinedAt < snapshot[1].JoinedAt, "Порядковые номера должны монотонно расти")
}

func TestEnqueueAlreadyQueuedGlobally(t *testing.T) {
	s := NewStore()

	_, err := s.Enqueue(1, 10, "room-a")
	assert.NoError(t, err)

	// Повторное вступление к тому же врачу.
	_, err = s.Enqueue(1, 10, "room-a")
	assert.ErrorIs(t, err, ErrAlreadyQueued, "Пациент не может стоять в одной очереди дважды")

	// Вступление к другому врачу, пока стоит в первой очереди.
	_, err = s.Enqueue(2, 10, "room-a")
	assert.ErrorIs(t, err, ErrAlreadyQueued, "Пациент может ожидать только одного врача во всей системе")

	doctorID, ok := s.DoctorOf(10)
	assert.True(t, ok)
	assert.Equal(t, uint(1), doctorID)
}

func TestDequeueEmpty(t *testing.T) {
	s := NewStore()

	_, err := s.Dequeue(1)
	assert.ErrorIs(t, err, ErrEmptyQueue, "Снятие головы пустой очереди должно вернуть ErrEmptyQueue")
}

func TestDequeueFreesPatient(t *testing.T) {
	s := NewStore()

	s.Enqueue(1, 10, "room-a")
	s.Enqueue(1, 11, "room-b")

	head, err := s.Dequeue(1)
	assert.NoError(t, err)
	assert.Equal(t, uint(10), head.PatientID, "Снимается именно голова очереди")

	// Снятый пациент может встать в очередь снова.
	_, err = s.Enqueue(2, 10, "room-a")
	assert.NoError(t, err, "После снятия пациент должен освободиться в глобальном индексе")
}

func TestRemoveIdempotent(t *testing.T) {
	s := NewStore()

	s.Enqueue(1, 10, "room-a")
	s.Enqueue(1, 11, "room-b")
	s.Enqueue(1, 12, "room-c")

	pos, removed := s.Remove(1, 11)
	assert.True(t, removed)
	assert.Equal(t, 2, pos, "Возвращается позиция, которую занимал вышедший")

	// Повторное удаление — no-op, не ошибка.
	_, removed = s.Remove(1, 11)
	assert.False(t, removed, "Повторный выход из очереди должен быть no-op")

	// Порядок оставшихся не меняется, позиции пересчитываются.
	snapshot := s.Snapshot(1)
	assert.Len(t, snapshot, 2)
	assert.Equal(t, uint(10), snapshot[0].PatientID)
	assert.Equal(t, uint(12), snapshot[1].PatientID)

	pos, err := s.PositionOf(1, 12)
	assert.NoError(t, err)
	assert.Equal(t, 2, pos, "Пациент за вышедшим должен подняться на одну позицию")
}

func TestPositionOfNotFound(t *testing.T) {
	s := NewStore()

	_, err := s.PositionOf(1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPeek(t *testing.T) {
	s := NewStore()

	_, err := s.Peek(1)
	assert.ErrorIs(t, err, ErrEmptyQueue, "Подсматривание пустой очереди должно вернуть ErrEmptyQueue")

	s.Enqueue(1, 10, "room-a")
	s.Enqueue(1, 11, "room-b")

	head, err := s.Peek(1)
	assert.NoError(t, err)
	assert.Equal(t, uint(10), head.PatientID, "Подсматривается именно голова очереди")

	// Peek не снимает голову и не трогает глобальный индекс.
	assert.Equal(t, 2, s.Len(1))
	_, err = s.Enqueue(2, 10, "room-a")
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestQueuesAreIndependent(t *testing.T) {
	s := NewStore()

	s.Enqueue(1, 10, "room-a")
	s.Enqueue(2, 20, "room-b")
	s.Enqueue(2, 21, "room-c")

	assert.Equal(t, 1, s.Len(1))
	assert.Equal(t, 2, s.Len(2))

	_, removed := s.Remove(1, 20)
	assert.False(t, removed, "Удаление смотрит только в очередь указанного врача")
}
