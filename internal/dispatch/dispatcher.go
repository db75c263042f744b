package dispatch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"telemed/internal/consult"
	"telemed/internal/presence"
	"telemed/internal/queue"
)

// Dispatcher связывает очереди, присутствие врачей и жизненный цикл
// консультаций. Все мутации по одному врачу сериализуются его личным
// мьютексом, поэтому приглашение, вступление, выход и смена доступности
// одного врача никогда не перемешиваются; очереди разных врачей при этом
// обрабатываются параллельно. Никто, кроме диспетчера, состояние не меняет.
type Dispatcher struct {
	queues   *queue.Store
	presence *presence.Tracker
	consults *consult.Table

	mu    sync.Mutex
	locks map[uint]*sync.Mutex

	// AvgDuration — средняя длительность консультации для оценки ожидания.
	AvgDuration func() time.Duration
	// OnEnded вызывается для каждой завершённой консультации уже после
	// выхода из критической секции (архивирование — это I/O).
	OnEnded func(consult.Consultation)
}

func NewDispatcher(avg func() time.Duration) *Dispatcher {
	return &Dispatcher{
		queues:      queue.NewStore(),
		presence:    presence.NewTracker(),
		consults:    consult.NewTable(),
		locks:       make(map[uint]*sync.Mutex),
		AvgDuration: avg,
	}
}

// doctorLock возвращает мьютекс врача, создавая его при первом обращении.
func (d *Dispatcher) doctorLock(doctorID uint) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[doctorID] = l
	}
	return l
}

// JoinQueue ставит пациента в хвост очереди врача.
func (d *Dispatcher) JoinQueue(doctorID, patientID uint, roomName string) ([]Notification, error) {
	l := d.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	// Пациент на идущей консультации не может встать в очередь:
	// у пациента не бывает двух живых сессий одновременно.
	if d.consults.PatientBusy(patientID) {
		return nil, queue.ErrAlreadyQueued
	}

	pos, err := d.queues.Enqueue(doctorID, patientID, roomName)
	if err != nil {
		return nil, err
	}

	notifs := []Notification{
		d.queueNotification(doctorID),
		d.positionNotification(patientID, pos),
	}
	return notifs, nil
}

// LeaveQueue убирает пациента из очереди врача.
// Повторный выход — no-op без уведомлений.
func (d *Dispatcher) LeaveQueue(doctorID, patientID uint) []Notification {
	l := d.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	removedPos, removed := d.queues.Remove(doctorID, patientID)
	if !removed {
		return nil
	}

	notifs := []Notification{d.queueNotification(doctorID)}
	// Все, кто стоял за вышедшим, поднялись на одну позицию.
	for i, e := range d.queues.Snapshot(doctorID) {
		if i+1 >= removedPos {
			notifs = append(notifs, d.positionNotification(e.PatientID, i+1))
		}
	}
	return notifs
}

// SwitchDoctorAvailability переключает врача между Offline и Available.
// Для занятого врача переключение молча игнорируется (только лог):
// доступность занятого врача меняет завершение консультации, а не он сам.
func (d *Dispatcher) SwitchDoctorAvailability(doctorID uint) (presence.State, []Notification) {
	l := d.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	switch d.presence.StateOf(doctorID) {
	case presence.StateBusy:
		log.Printf("Врач %d пытался сменить доступность во время консультации", doctorID)
		return presence.StateBusy, nil
	case presence.StateAvailable:
		d.presence.SetOffline(doctorID)
		return presence.StateOffline, nil
	default:
		if err := d.presence.SetAvailable(doctorID); err != nil {
			log.Printf("Не удалось перевести врача %d в available: %v", doctorID, err)
			return d.presence.StateOf(doctorID), nil
		}
		// Вернувшийся врач сразу видит, кто его ждал: записи из очереди
		// при уходе в offline не удаляются.
		return presence.StateAvailable, []Notification{d.queueNotification(doctorID)}
	}
}

// InviteNextPatient приглашает голову очереди врача на консультацию.
// Пустая очередь — не ошибка: врач получает no_waiting_patients.
func (d *Dispatcher) InviteNextPatient(doctorID uint) ([]Notification, error) {
	l := d.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	switch d.presence.StateOf(doctorID) {
	case presence.StateBusy:
		return nil, presence.ErrDoctorBusy
	case presence.StateOffline:
		return nil, presence.ErrNotAvailable
	}
	if _, busy := d.consults.ActiveFor(doctorID); busy {
		// Присутствие и таблица консультаций не могут разойтись иначе как
		// из-за гонки вне критической секции.
		return nil, presence.ErrDoctorBusy
	}

	// Голову подсматриваем, не снимая: пока консультация не зарегистрирована,
	// снятый пациент не числился бы нигде, и параллельный JoinQueue к другому
	// врачу проскочил бы обе проверки. Снятие идёт последним шагом, когда
	// пациент уже закреплён за консультацией; сорваться между этими шагами
	// нечему, так что и возвращать пациента в голову не приходится.
	entry, err := d.queues.Peek(doctorID)
	if err != nil {
		return []Notification{{UserID: doctorID, EventType: EventNoWaitingPatients}}, nil
	}

	if err := d.presence.MarkBusy(doctorID); err != nil {
		// Пациент остаётся в голове очереди: следующее приглашение
		// достанется ему же.
		return nil, err
	}

	c := d.consults.Start(doctorID, entry.PatientID, entry.RoomName)

	head, err := d.queues.Dequeue(doctorID)
	if err != nil || head.PatientID != entry.PatientID {
		// Очередь врача мутирует только под его мьютексом, голова не могла
		// смениться — это ошибка программиста, а не восстановимая ситуация.
		panic(fmt.Sprintf("dispatch: голова очереди врача %d сменилась во время приглашения", doctorID))
	}

	notifs := []Notification{
		{
			UserID:    entry.PatientID,
			EventType: EventInvitePatient,
			Data: map[string]interface{}{
				"room_name":       c.RoomName,
				"consultation_id": c.ID,
			},
		},
		d.queueNotification(doctorID),
	}
	return notifs, nil
}

// EndConsultation завершает консультацию и освобождает врача.
// Повторное завершение возвращает consult.ErrNotFound: обе стороны звонка
// могут прислать завершение одновременно.
func (d *Dispatcher) EndConsultation(consultationID string) ([]Notification, error) {
	c, ok := d.consults.Get(consultationID)
	if !ok {
		return nil, consult.ErrNotFound
	}

	l := d.doctorLock(c.DoctorID)
	l.Lock()
	// Перепроверяем под замком: консультацию могли завершить, пока мы его брали.
	ended, err := d.consults.End(consultationID)
	if err != nil {
		l.Unlock()
		return nil, err
	}
	d.presence.MarkFree(ended.DoctorID)
	l.Unlock()

	if d.OnEnded != nil {
		d.OnEnded(ended)
	}

	notifs := []Notification{
		{UserID: ended.PatientID, EventType: EventConsultationEnded},
	}
	return notifs, nil
}

// DisconnectPatient — синтетическое событие разрыва соединения пациента.
// Эквивалентно выходу из очереди, идёт тем же сериализованным путём.
func (d *Dispatcher) DisconnectPatient(patientID uint) []Notification {
	doctorID, ok := d.queues.DoctorOf(patientID)
	if !ok {
		return nil
	}
	return d.LeaveQueue(doctorID, patientID)
}

// DisconnectDoctor — синтетическое событие разрыва соединения врача.
// Врач уходит в offline; его активная консультация при этом не завершается
// принудительно, а очередь остаётся ждать возвращения.
func (d *Dispatcher) DisconnectDoctor(doctorID uint) {
	l := d.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	if d.presence.StateOf(doctorID) == presence.StateBusy {
		log.Printf("Врач %d отключился во время консультации", doctorID)
	}
	d.presence.SetOffline(doctorID)
}

// PresenceOf возвращает статус присутствия врача.
func (d *Dispatcher) PresenceOf(doctorID uint) presence.State {
	return d.presence.StateOf(doctorID)
}

// QueueSnapshot возвращает срез очереди врача для REST-выдачи.
func (d *Dispatcher) QueueSnapshot(doctorID uint) []queue.Entry {
	return d.queues.Snapshot(doctorID)
}

// QueueLen возвращает длину очереди врача без копирования записей.
func (d *Dispatcher) QueueLen(doctorID uint) int {
	return d.queues.Len(doctorID)
}

// PositionOf возвращает позицию пациента в очереди врача.
func (d *Dispatcher) PositionOf(doctorID, patientID uint) (int, error) {
	return d.queues.PositionOf(doctorID, patientID)
}

// StaleConsultations возвращает консультации, начатые раньше порога.
// Хук для внешней политики таймаутов поверх EndConsultation.
func (d *Dispatcher) StaleConsultations(cutoff time.Time) []string {
	return d.consults.StaleBefore(cutoff)
}

// EstimatedWait оценивает ожидание как позицию, умноженную на среднюю
// длительность консультации. Инвариантов корректности тут нет — это
// ориентир для пациента, не обещание.
func (d *Dispatcher) EstimatedWait(position int) time.Duration {
	return time.Duration(position) * d.AvgDuration()
}

// queueNotification собирает уведомление врачу о текущем состоянии очереди.
// Пустая очередь отдаётся отдельным событием, а не пустым списком.
func (d *Dispatcher) queueNotification(doctorID uint) Notification {
	entries := d.queues.Snapshot(doctorID)
	if len(entries) == 0 {
		return Notification{UserID: doctorID, EventType: EventNoWaitingPatients}
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for i, e := range entries {
		items = append(items, map[string]interface{}{
			"patient_id": e.PatientID,
			"room_name":  e.RoomName,
			"position":   i + 1,
		})
	}
	return Notification{
		UserID:    doctorID,
		EventType: EventQueueChanged,
		Data:      map[string]interface{}{"queue": items},
	}
}

// positionNotification собирает уведомление пациенту о его позиции.
func (d *Dispatcher) positionNotification(patientID uint, position int) Notification {
	return Notification{
		UserID:    patientID,
		EventType: EventQueuePositionUpdate,
		Data: map[string]interface{}{
			"position":               position,
			"estimated_wait_seconds": int(d.EstimatedWait(position).Seconds()),
		},
	}
}
