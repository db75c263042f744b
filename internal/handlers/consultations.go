package handlers

import (
	"net/http"
	"time"

	"telemed/internal/models"
	"telemed/internal/response"
	"telemed/internal/storage"

	"github.com/gin-gonic/gin"
)

// ConsultationHistoryItem — одна завершённая консультация в истории.
type ConsultationHistoryItem struct {
	ConsultationID string    `json:"consultation_id"`
	DoctorID       uint      `json:"doctor_id"`
	PatientID      uint      `json:"patient_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// ConsultationHistoryResponse — история консультаций пользователя.
type ConsultationHistoryResponse struct {
	Items []ConsultationHistoryItem `json:"items"`
}

// GetConsultationHistoryHandler обрабатывает запрос истории консультаций
// @Summary		История консультаций
// @Description	Возвращает завершённые консультации текущего пользователя (врача или пациента)
// @Tags			consultations
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	ConsultationHistoryResponse	"История консультаций"
// @Failure		500	{object}	response.ErrorResponse		"Ошибка сервера (DB_ERROR)"
// @Router			/api/consultations [get]
func GetConsultationHistoryHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var records []models.ConsultationRecord
	query := storage.DB.Order("ended_at DESC").Limit(100)
	if c.GetBool("isDoctor") {
		query = query.Where("doctor_id = ?", userID)
	} else {
		query = query.Where("patient_id = ?", userID)
	}
	if err := query.Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки истории консультаций",
			Details: err.Error(),
		})
		return
	}

	items := make([]ConsultationHistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, ConsultationHistoryItem{
			ConsultationID: r.ConsultationID,
			DoctorID:       r.DoctorID,
			PatientID:      r.PatientID,
			StartedAt:      r.StartedAt,
			EndedAt:        r.EndedAt,
		})
	}

	c.JSON(http.StatusOK, ConsultationHistoryResponse{Items: items})
}
