package dispatch

// Типы исходящих событий. Имена совпадают с event_type в WS-сообщениях.
const (
	EventQueueChanged        = "queue_changed"
	EventNoWaitingPatients   = "no_waiting_patients"
	EventQueuePositionUpdate = "queue_position_update"
	EventInvitePatient       = "invite_patient"
	EventConsultationEnded   = "consultation_ended"
	EventError               = "error"
)

// Notification — намерение отправить событие конкретному пользователю.
// Диспетчер только возвращает такие намерения; доставкой занимается
// отдельный слой рассылки уже после выхода из критической секции, чтобы
// медленный получатель не тормозил очередь.
type Notification struct {
	UserID    uint
	EventType string
	Data      map[string]interface{}
}
