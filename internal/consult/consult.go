package consult

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status — состояние консультации.
type Status string

const (
	// StatusInviting — пациент приглашён, но комнату ещё не подтвердил.
	StatusInviting Status = "inviting"
	// StatusActive — консультация идёт.
	StatusActive Status = "active"
	// StatusEnded — консультация завершена и снята с учёта.
	StatusEnded Status = "ended"
)

// ErrNotFound — консультация не найдена (либо уже завершена).
// Обе стороны звонка могут прислать завершение одновременно, поэтому
// повторное завершение — ожидаемая ситуация, а не сбой.
var ErrNotFound = errors.New("консультация не найдена")

// Consultation — одна пара врач-пациент от приглашения до завершения.
type Consultation struct {
	ID        string    `json:"consultation_id"`
	DoctorID  uint      `json:"doctor_id"`
	PatientID uint      `json:"patient_id"`
	RoomName  string    `json:"room_name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// Table — таблица живых консультаций. Завершённые консультации из таблицы
// удаляются; их архивирование — забота слоя хранения, не ядра.
type Table struct {
	mu        sync.RWMutex
	byID      map[string]Consultation
	byDoctor  map[uint]string
	byPatient map[uint]string
}

func NewTable() *Table {
	return &Table{
		byID:      make(map[string]Consultation),
		byDoctor:  make(map[uint]string),
		byPatient: make(map[uint]string),
	}
}

// Start создаёт консультацию в состоянии Inviting и сразу переводит её в
// Active: подключение пациента к комнате — транспортный шаг на его стороне,
// с точки зрения диспетчера приглашение и начало — один момент.
func (t *Table) Start(doctorID, patientID uint, roomName string) Consultation {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := Consultation{
		ID:        uuid.NewString(),
		DoctorID:  doctorID,
		PatientID: patientID,
		RoomName:  roomName,
		Status:    StatusInviting,
		StartedAt: time.Now(),
	}
	c.Status = StatusActive
	t.byID[c.ID] = c
	t.byDoctor[doctorID] = c.ID
	t.byPatient[patientID] = c.ID
	return c
}

// PatientBusy сообщает, идёт ли у пациента живая консультация.
func (t *Table) PatientBusy(patientID uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byPatient[patientID]
	return ok
}

// Get возвращает живую консультацию по идентификатору.
func (t *Table) Get(id string) (Consultation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.byID[id]
	return c, ok
}

// ActiveFor возвращает живую консультацию врача, если она есть.
func (t *Table) ActiveFor(doctorID uint) (Consultation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byDoctor[doctorID]
	if !ok {
		return Consultation{}, false
	}
	return t.byID[id], true
}

// End завершает консультацию и снимает её с учёта.
// Повторное или чужое завершение возвращает ErrNotFound.
func (t *Table) End(id string) (Consultation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byID[id]
	if !ok {
		return Consultation{}, ErrNotFound
	}
	delete(t.byID, id)
	delete(t.byDoctor, c.DoctorID)
	delete(t.byPatient, c.PatientID)
	c.Status = StatusEnded
	return c, nil
}

// StaleBefore возвращает идентификаторы консультаций, начатых раньше порога.
// Используется внешней политикой таймаутов: само ядро таймеров не заводит.
func (t *Table) StaleBefore(cutoff time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, c := range t.byID {
		if c.StartedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
