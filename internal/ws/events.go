package ws

import (
	"encoding/json"
	"log"
)

// Типы входящих событий.
const (
	EventSwitchDoctorAvailability = "switch_doctor_availability"
	EventPatientJoinQueue         = "patient_join_queue"
	EventLeaveQueue               = "leave_queue"
	EventInviteNextPatient        = "invite_next_patient"
	EventEndConsultation          = "end_consultation"
)

// ClientEvent — входящее событие клиента.
// Кто отправитель (пациент или врач) — известно из соединения, поэтому
// patient_id в событиях пациента и doctor_id в событиях врача берутся из
// токена, а не из тела: клиент не может действовать от чужого имени.
type ClientEvent struct {
	Event          string `json:"event"`
	DoctorID       uint   `json:"doctor_id,omitempty"`
	RoomName       string `json:"room_name,omitempty"`
	ConsultationID string `json:"consultation_id,omitempty"`
}

// handleClientEvent разбирает событие и прогоняет его через диспетчер.
// Ошибки диспетчера — ожидаемые ситуации (occupied, пустая очередь и т.п.),
// они возвращаются отправителю событием error, процессу они не страшны.
func handleClientEvent(c *Client, raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.Hub.NotifyError(c.UserID, "Неверный формат события")
		return
	}

	switch ev.Event {
	case EventSwitchDoctorAvailability:
		if !c.IsDoctor {
			c.Hub.NotifyError(c.UserID, "Событие доступно только врачу")
			return
		}
		_, notifs := Dispatcher.SwitchDoctorAvailability(c.UserID)
		c.Hub.NotifyAll(notifs)

	case EventPatientJoinQueue:
		notifs, err := Dispatcher.JoinQueue(ev.DoctorID, c.UserID, ev.RoomName)
		if err != nil {
			c.Hub.NotifyError(c.UserID, err.Error())
			return
		}
		c.Hub.NotifyAll(notifs)

	case EventLeaveQueue:
		c.Hub.NotifyAll(Dispatcher.LeaveQueue(ev.DoctorID, c.UserID))

	case EventInviteNextPatient:
		if !c.IsDoctor {
			c.Hub.NotifyError(c.UserID, "Событие доступно только врачу")
			return
		}
		notifs, err := Dispatcher.InviteNextPatient(c.UserID)
		if err != nil {
			c.Hub.NotifyError(c.UserID, err.Error())
			return
		}
		c.Hub.NotifyAll(notifs)

	case EventEndConsultation:
		notifs, err := Dispatcher.EndConsultation(ev.ConsultationID)
		if err != nil {
			c.Hub.NotifyError(c.UserID, err.Error())
			return
		}
		c.Hub.NotifyAll(notifs)

	default:
		log.Printf("Неизвестное событие от пользователя %d: %s", c.UserID, ev.Event)
		c.Hub.NotifyError(c.UserID, "Неизвестное событие")
	}
}
