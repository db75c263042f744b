package handlers

import (
	"net/http"
	"strconv"

	"telemed/internal/dispatch"
	"telemed/internal/response"

	"github.com/gin-gonic/gin"
)

// Dispatcher — диспетчер очередей, задаётся из main при старте.
var Dispatcher *dispatch.Dispatcher

// WaitingPatient — один ожидающий пациент в выдаче статуса очереди.
type WaitingPatient struct {
	PatientID            uint   `json:"patient_id"`
	RoomName             string `json:"room_name"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

// QueueStatusResponse содержит статус очереди врача и список ожидающих.
type QueueStatusResponse struct {
	DoctorID uint             `json:"doctor_id"`
	Presence string           `json:"presence"`
	Waiting  []WaitingPatient `json:"waiting"`
}

// GetDoctorQueueHandler обрабатывает запрос на получение статуса очереди врача
// @Summary		Получение очереди врача
// @Description	Возвращает статус присутствия врача и список ожидающих пациентов с позициями
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID врача"
// @Security		BearerAuth
// @Success		200	{object}	QueueStatusResponse		"Текущее состояние очереди"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_DOCTOR_ID)"
// @Router			/api/doctors/{id}/queue [get]
func GetDoctorQueueHandler(c *gin.Context) {
	doctorIDStr := c.Param("id")
	doctorID, err := strconv.Atoi(doctorIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_DOCTOR_ID",
			Message: "Неверный идентификатор врача",
		})
		return
	}

	entries := Dispatcher.QueueSnapshot(uint(doctorID))
	waiting := make([]WaitingPatient, 0, len(entries))
	for i, e := range entries {
		waiting = append(waiting, WaitingPatient{
			PatientID:            e.PatientID,
			RoomName:             e.RoomName,
			Position:             i + 1,
			EstimatedWaitSeconds: int(Dispatcher.EstimatedWait(i + 1).Seconds()),
		})
	}

	c.JSON(http.StatusOK, QueueStatusResponse{
		DoctorID: uint(doctorID),
		Presence: string(Dispatcher.PresenceOf(uint(doctorID))),
		Waiting:  waiting,
	})
}
