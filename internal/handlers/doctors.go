package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"telemed/internal/models"
	"telemed/internal/response"
	"telemed/internal/storage"

	"github.com/gin-gonic/gin"
)

var ctx = context.Background()

// DoctorInfo — карточка врача в справочнике.
type DoctorInfo struct {
	DoctorID  uint   `json:"doctor_id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Specialty string `json:"specialty"`
	Presence  string `json:"presence"`
	Waiting   int    `json:"waiting"`
}

// DoctorsResponse — список врачей.
type DoctorsResponse struct {
	Items []DoctorInfo `json:"items"`
}

// GetDoctorsHandler обрабатывает запрос на список врачей
// @Summary		Список врачей
// @Description	Возвращает справочник врачей с живым статусом присутствия и длиной очереди
// @Tags			doctors
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	DoctorsResponse			"Список врачей"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/doctors [get]
func GetDoctorsHandler(c *gin.Context) {
	cacheKey := "doctors_all"
	redisClient := storage.RedisClient

	// Статическую часть справочника берём из кэша; статус присутствия и
	// длина очереди живут в памяти диспетчера и подмешиваются на каждый запрос.
	var doctors []models.User
	cached, err := redisClient.Get(ctx, cacheKey).Result()
	if err == nil && cached != "" {
		if err := json.Unmarshal([]byte(cached), &doctors); err != nil {
			doctors = nil
		}
	}

	if doctors == nil {
		if err := storage.DB.Where("is_doctor = ?", true).Order("id ASC").Find(&doctors).Error; err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "DB_ERROR",
				Message: "Ошибка загрузки списка врачей",
				Details: err.Error(),
			})
			return
		}
		if data, err := json.Marshal(doctors); err == nil {
			// Кэширование результата на 5 минут
			redisClient.Set(ctx, cacheKey, string(data), 5*time.Minute)
		}
	}

	items := make([]DoctorInfo, 0, len(doctors))
	for _, d := range doctors {
		items = append(items, DoctorInfo{
			DoctorID:  d.ID,
			Name:      d.Name,
			Surname:   d.Surname,
			Specialty: d.Specialty,
			Presence:  string(Dispatcher.PresenceOf(d.ID)),
			Waiting:   Dispatcher.QueueLen(d.ID),
		})
	}

	c.JSON(http.StatusOK, DoctorsResponse{Items: items})
}
