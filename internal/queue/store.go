package queue

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyQueued — пациент уже стоит в какой-то очереди (в любой, не только этой).
	ErrAlreadyQueued = errors.New("пациент уже состоит в очереди")
	// ErrEmptyQueue — в очереди врача нет ожидающих пациентов.
	ErrEmptyQueue = errors.New("очередь пуста")
	// ErrNotFound — пациент не найден в очереди врача.
	ErrNotFound = errors.New("пациент не найден в очереди")
)

// Entry — запись об ожидающем пациенте в очереди конкретного врача.
type Entry struct {
	PatientID uint   `json:"patient_id"`
	DoctorID  uint   `json:"doctor_id"`
	RoomName  string `json:"room_name"`
	// Монотонный порядковый номер вступления. Не время: часы клиентов
	// могут расходиться, а порядок вступления расходиться не должен.
	JoinedAt uint64 `json:"joined_at"`
}

// Store хранит очереди ожидания по врачам.
// Позиция пациента нигде не хранится — она вычисляется по индексу в срезе
// при чтении, поэтому удаление из середины очереди не требует пересчёта.
type Store struct {
	mu sync.RWMutex
	// Очередь каждого врача в порядке вступления.
	queues map[uint][]Entry
	// Глобальный индекс: у какого врача стоит пациент.
	// Пациент может ожидать только одного врача во всей системе.
	index map[uint]uint
	seq   uint64
}

func NewStore() *Store {
	return &Store{
		queues: make(map[uint][]Entry),
		index:  make(map[uint]uint),
	}
}

// Enqueue добавляет пациента в хвост очереди врача и возвращает его позицию (с единицы).
// Возвращает ErrAlreadyQueued, если пациент уже ожидает какого-либо врача.
func (s *Store) Enqueue(doctorID, patientID uint, roomName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[patientID]; ok {
		return 0, ErrAlreadyQueued
	}

	s.seq++
	entry := Entry{
		PatientID: patientID,
		DoctorID:  doctorID,
		RoomName:  roomName,
		JoinedAt:  s.seq,
	}
	s.queues[doctorID] = append(s.queues[doctorID], entry)
	s.index[patientID] = doctorID

	return len(s.queues[doctorID]), nil
}

// Dequeue снимает голову очереди врача.
func (s *Store) Dequeue(doctorID uint) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[doctorID]
	if len(q) == 0 {
		return Entry{}, ErrEmptyQueue
	}

	head := q[0]
	s.dropFromIndex(head)
	s.queues[doctorID] = q[1:]
	if len(s.queues[doctorID]) == 0 {
		delete(s.queues, doctorID)
	}
	return head, nil
}

// Peek возвращает голову очереди врача, не снимая её.
// Приглашение сначала регистрирует консультацию по подсмотренной голове и
// только потом снимает её: пока пациент не числится ни в очереди, ни в
// консультации, его могло бы принять в другую очередь.
func (s *Store) Peek(doctorID uint) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.queues[doctorID]
	if len(q) == 0 {
		return Entry{}, ErrEmptyQueue
	}
	return q[0], nil
}

// Remove убирает пациента из очереди врача, где бы он в ней ни стоял.
// Возвращает позицию, которую он занимал, и признак того, что запись была.
// Отсутствие записи — не ошибка: повторный выход из очереди это no-op.
func (s *Store) Remove(doctorID, patientID uint) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[doctorID]
	for i, e := range q {
		if e.PatientID == patientID {
			s.dropFromIndex(e)
			s.queues[doctorID] = append(q[:i:i], q[i+1:]...)
			if len(s.queues[doctorID]) == 0 {
				delete(s.queues, doctorID)
			}
			return i + 1, true
		}
	}
	return 0, false
}

// PositionOf возвращает текущую позицию пациента в очереди врача (с единицы).
func (s *Store) PositionOf(doctorID, patientID uint) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, e := range s.queues[doctorID] {
		if e.PatientID == patientID {
			return i + 1, nil
		}
	}
	return 0, ErrNotFound
}

// DoctorOf возвращает врача, которого ожидает пациент.
func (s *Store) DoctorOf(patientID uint) (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doctorID, ok := s.index[patientID]
	return doctorID, ok
}

// Snapshot возвращает копию очереди врача в порядке вступления.
func (s *Store) Snapshot(doctorID uint) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.queues[doctorID]
	out := make([]Entry, len(q))
	copy(out, q)
	return out
}

// Len возвращает длину очереди врача.
func (s *Store) Len(doctorID uint) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues[doctorID])
}

// dropFromIndex снимает запись с глобального индекса. Расхождение индекса и
// очереди означает, что какая-то мутация прошла мимо общего критического
// участка — это ошибка программиста, а не восстановимая ситуация.
func (s *Store) dropFromIndex(e Entry) {
	d, ok := s.index[e.PatientID]
	if !ok || d != e.DoctorID {
		panic(fmt.Sprintf("queue: индекс пациентов разошёлся с очередью врача %d (пациент %d)", e.DoctorID, e.PatientID))
	}
	delete(s.index, e.PatientID)
}
