package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telemed/internal/consult"
	"telemed/internal/presence"
	"telemed/internal/queue"

	"github.com/stretchr/testify/assert"
)

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(func() time.Duration { return 10 * time.Minute })
}

// findNotif ищет уведомление по адресату и типу события.
func findNotif(notifs []Notification, userID uint, eventType string) (Notification, bool) {
	for _, n := range notifs {
		if n.UserID == userID && n.EventType == eventType {
			return n, true
		}
	}
	return Notification{}, false
}

func TestJoinQueueNotifications(t *testing.T) {
	d := newTestDispatcher()

	notifs, err := d.JoinQueue(1, 10, "room-a")
	assert.NoError(t, err)

	qc, ok := findNotif(notifs, 1, EventQueueChanged)
	assert.True(t, ok, "Врач должен получить queue_changed")
	assert.Len(t, qc.Data["queue"], 1)

	pu, ok := findNotif(notifs, 10, EventQueuePositionUpdate)
	assert.True(t, ok, "Пациент должен получить свою позицию")
	assert.Equal(t, 1, pu.Data["position"])
	assert.Equal(t, 600, pu.Data["estimated_wait_seconds"], "Оценка ожидания — позиция на среднюю длительность")

	assert.Equal(t, 1, d.QueueLen(1))
}

func TestJoinQueueAlreadyQueued(t *testing.T) {
	d := newTestDispatcher()

	_, err := d.JoinQueue(1, 10, "room-a")
	assert.NoError(t, err)

	_, err = d.JoinQueue(2, 10, "room-a")
	assert.ErrorIs(t, err, queue.ErrAlreadyQueued)
}

// Пациент не может проскочить в другую очередь в момент приглашения:
// между снятием с очереди и регистрацией консультации нет окна, в котором
// он не числился бы нигде.
func TestInviteJoinRaceKeepsSingleSession(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)

	for i := 0; i < 200; i++ {
		_, err := d.JoinQueue(1, 10, "room-a")
		assert.NoError(t, err)

		var joined atomic.Bool
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := d.JoinQueue(2, 10, "room-b"); err == nil {
					joined.Store(true)
					return
				}
			}
		}()

		notifs, err := d.InviteNextPatient(1)
		assert.NoError(t, err)
		wg.Wait()

		// Пациент всё время числится либо в очереди, либо в консультации,
		// поэтому параллельное вступление к другому врачу обязано отказать.
		assert.False(t, joined.Load(), "Пациент не может встать в очередь во время приглашения")

		invite, _ := findNotif(notifs, 10, EventInvitePatient)
		_, err = d.EndConsultation(invite.Data["consultation_id"].(string))
		assert.NoError(t, err)
	}
}

// Пациент на идущей консультации не может встать в другую очередь.
func TestJoinQueueWhileInConsultation(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	_, err := d.InviteNextPatient(1)
	assert.NoError(t, err)

	_, err = d.JoinQueue(2, 10, "room-a")
	assert.ErrorIs(t, err, queue.ErrAlreadyQueued, "У пациента не бывает двух живых сессий")
}

// Сценарий: врач доступен, три пациента вступают по порядку, приглашение
// снимает голову, завершение освобождает врача.
func TestFullConsultationFlow(t *testing.T) {
	d := newTestDispatcher()

	var archived []consult.Consultation
	d.OnEnded = func(c consult.Consultation) { archived = append(archived, c) }

	state, _ := d.SwitchDoctorAvailability(1)
	assert.Equal(t, presence.StateAvailable, state)

	d.JoinQueue(1, 10, "room-p1")
	d.JoinQueue(1, 11, "room-p2")
	notifs, err := d.JoinQueue(1, 12, "room-p3")
	assert.NoError(t, err)

	pu, _ := findNotif(notifs, 12, EventQueuePositionUpdate)
	assert.Equal(t, 3, pu.Data["position"], "Третий пациент должен видеть позицию 3")

	// Приглашение головы очереди.
	notifs, err = d.InviteNextPatient(1)
	assert.NoError(t, err)

	invite, ok := findNotif(notifs, 10, EventInvitePatient)
	assert.True(t, ok, "Приглашение должно уйти первому вставшему")
	assert.Equal(t, "room-p1", invite.Data["room_name"], "roomName возвращается без изменений")
	consultationID := invite.Data["consultation_id"].(string)
	assert.NotEmpty(t, consultationID)

	qc, ok := findNotif(notifs, 1, EventQueueChanged)
	assert.True(t, ok)
	assert.Len(t, qc.Data["queue"], 2, "После приглашения в очереди остаются двое")

	assert.Equal(t, presence.StateBusy, d.PresenceOf(1), "На время консультации врач занят")

	pos, err := d.PositionOf(1, 11)
	assert.NoError(t, err)
	assert.Equal(t, 1, pos, "Следующий пациент поднимается в голову")

	// Завершение консультации.
	notifs, err = d.EndConsultation(consultationID)
	assert.NoError(t, err)

	_, ok = findNotif(notifs, 10, EventConsultationEnded)
	assert.True(t, ok, "Пациент должен получить consultation_ended")
	assert.Equal(t, presence.StateAvailable, d.PresenceOf(1), "После завершения врач снова доступен")

	assert.Len(t, archived, 1, "Завершённая консультация должна уйти в архив")
	assert.Equal(t, consultationID, archived[0].ID)

	// Повторное завершение (обе стороны шлют end одновременно).
	_, err = d.EndConsultation(consultationID)
	assert.ErrorIs(t, err, consult.ErrNotFound)
}

func TestLeaveQueueRecomputesPositions(t *testing.T) {
	d := newTestDispatcher()

	d.JoinQueue(1, 10, "room-p1")
	d.JoinQueue(1, 11, "room-p2")
	d.JoinQueue(1, 12, "room-p3")

	notifs := d.LeaveQueue(1, 11)

	qc, ok := findNotif(notifs, 1, EventQueueChanged)
	assert.True(t, ok)
	assert.Len(t, qc.Data["queue"], 2)

	// Пациент до вышедшего уведомление не получает, его позиция не менялась.
	_, ok = findNotif(notifs, 10, EventQueuePositionUpdate)
	assert.False(t, ok, "Пациенты перед вышедшим не должны получать обновление")

	pu, ok := findNotif(notifs, 12, EventQueuePositionUpdate)
	assert.True(t, ok, "Пациент за вышедшим должен получить новую позицию")
	assert.Equal(t, 2, pu.Data["position"])

	// Повторный выход — no-op без уведомлений.
	notifs = d.LeaveQueue(1, 11)
	assert.Empty(t, notifs, "Повторный выход не должен рождать уведомления")
}

func TestLeaveQueueLastPatient(t *testing.T) {
	d := newTestDispatcher()

	d.JoinQueue(1, 10, "room-a")
	notifs := d.LeaveQueue(1, 10)

	_, ok := findNotif(notifs, 1, EventNoWaitingPatients)
	assert.True(t, ok, "Опустевшая очередь отдаётся как no_waiting_patients, а не пустой список")
}

func TestInviteEmptyQueue(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)

	notifs, err := d.InviteNextPatient(1)
	assert.NoError(t, err, "Пустая очередь — не ошибка")

	_, ok := findNotif(notifs, 1, EventNoWaitingPatients)
	assert.True(t, ok, "Врач должен получить no_waiting_patients")
}

func TestInviteWhileBusy(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	d.JoinQueue(1, 11, "room-b")

	_, err := d.InviteNextPatient(1)
	assert.NoError(t, err)

	// Второе приглашение при активной консультации запрещено.
	_, err = d.InviteNextPatient(1)
	assert.ErrorIs(t, err, presence.ErrDoctorBusy)

	pos, err := d.PositionOf(1, 11)
	assert.NoError(t, err)
	assert.Equal(t, 1, pos, "Неудачное приглашение не трогает очередь")
}

func TestInviteOfflineKeepsHead(t *testing.T) {
	d := newTestDispatcher()

	d.JoinQueue(1, 10, "room-a")

	// Врач offline — приглашение невозможно, пациент остаётся в голове.
	_, err := d.InviteNextPatient(1)
	assert.ErrorIs(t, err, presence.ErrNotAvailable)

	pos, err := d.PositionOf(1, 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, pos)

	// Как только врач вернулся, приглашение достаётся тому же пациенту.
	d.SwitchDoctorAvailability(1)
	notifs, err := d.InviteNextPatient(1)
	assert.NoError(t, err)

	_, ok := findNotif(notifs, 10, EventInvitePatient)
	assert.True(t, ok, "Повторное приглашение должно достаться тому же пациенту")
}

func TestSwitchAvailabilityToggle(t *testing.T) {
	d := newTestDispatcher()

	state, notifs := d.SwitchDoctorAvailability(1)
	assert.Equal(t, presence.StateAvailable, state)
	_, ok := findNotif(notifs, 1, EventNoWaitingPatients)
	assert.True(t, ok, "Вернувшийся врач с пустой очередью получает no_waiting_patients")

	state, notifs = d.SwitchDoctorAvailability(1)
	assert.Equal(t, presence.StateOffline, state)
	assert.Empty(t, notifs)

	// Записи не удаляются, пока врач offline: вернувшись, он видит очередь.
	d.JoinQueue(1, 10, "room-a")
	state, notifs = d.SwitchDoctorAvailability(1)
	assert.Equal(t, presence.StateAvailable, state)
	qc, ok := findNotif(notifs, 1, EventQueueChanged)
	assert.True(t, ok)
	assert.Len(t, qc.Data["queue"], 1)
}

func TestSwitchAvailabilityWhileBusy(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	d.InviteNextPatient(1)

	// Занятый врач не может переключить доступность: молча игнорируем.
	state, notifs := d.SwitchDoctorAvailability(1)
	assert.Equal(t, presence.StateBusy, state)
	assert.Empty(t, notifs)
}

func TestDisconnectPatient(t *testing.T) {
	d := newTestDispatcher()

	d.JoinQueue(1, 10, "room-a")
	d.JoinQueue(1, 11, "room-b")

	notifs := d.DisconnectPatient(10)

	qc, ok := findNotif(notifs, 1, EventQueueChanged)
	assert.True(t, ok, "Разрыв соединения пациента эквивалентен выходу из очереди")
	assert.Len(t, qc.Data["queue"], 1)

	// Пациент вне очереди — разрыв ничего не делает.
	assert.Empty(t, d.DisconnectPatient(10))
}

func TestDisconnectDoctorDuringConsultation(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	notifs, err := d.InviteNextPatient(1)
	assert.NoError(t, err)
	invite, _ := findNotif(notifs, 10, EventInvitePatient)
	consultationID := invite.Data["consultation_id"].(string)

	d.DisconnectDoctor(1)
	assert.Equal(t, presence.StateOffline, d.PresenceOf(1))

	// Уход в offline не завершает консультацию принудительно:
	// её по-прежнему можно завершить обычным путём.
	notifs, err = d.EndConsultation(consultationID)
	assert.NoError(t, err)
	_, ok := findNotif(notifs, 10, EventConsultationEnded)
	assert.True(t, ok)
	assert.Equal(t, presence.StateOffline, d.PresenceOf(1), "MarkFree не воскрешает ушедшего врача")
}

// У одного врача не может быть двух активных консультаций, даже когда
// приглашения летят параллельно.
func TestConcurrentInvitesSingleActive(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	d.JoinQueue(1, 11, "room-b")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.InviteNextPatient(1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var invited, busy int
	for err := range results {
		switch {
		case err == nil:
			invited++
		default:
			assert.ErrorIs(t, err, presence.ErrDoctorBusy)
			busy++
		}
	}
	assert.Equal(t, 1, invited, "Ровно одно приглашение должно пройти")
	assert.Equal(t, 1, busy)
	assert.Equal(t, presence.StateBusy, d.PresenceOf(1))
	assert.Equal(t, 1, d.QueueLen(1), "Второй пациент остаётся в очереди")
}

// Очереди разных врачей живут параллельно и не мешают друг другу.
func TestDoctorsAreIndependent(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.SwitchDoctorAvailability(2)
	d.JoinQueue(1, 10, "room-a")
	d.JoinQueue(2, 20, "room-b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); d.InviteNextPatient(1) }()
	go func() { defer wg.Done(); d.InviteNextPatient(2) }()
	wg.Wait()

	assert.Equal(t, presence.StateBusy, d.PresenceOf(1))
	assert.Equal(t, presence.StateBusy, d.PresenceOf(2))
}

func TestStaleConsultations(t *testing.T) {
	d := newTestDispatcher()

	d.SwitchDoctorAvailability(1)
	d.JoinQueue(1, 10, "room-a")
	notifs, _ := d.InviteNextPatient(1)
	invite, _ := findNotif(notifs, 10, EventInvitePatient)
	consultationID := invite.Data["consultation_id"].(string)

	assert.Empty(t, d.StaleConsultations(time.Now().Add(-time.Minute)))

	stale := d.StaleConsultations(time.Now().Add(time.Minute))
	assert.Equal(t, []string{consultationID}, stale)

	// Внешняя политика таймаутов завершает протухшую консультацию
	// обычным EndConsultation.
	_, err := d.EndConsultation(consultationID)
	assert.NoError(t, err)
	assert.Equal(t, presence.StateAvailable, d.PresenceOf(1))
}
