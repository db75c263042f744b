package main

import (
	"fmt"
	"log"
	"os"
	"time"

	_ "telemed/docs"
	"telemed/internal/auth"
	"telemed/internal/consult"
	"telemed/internal/dispatch"
	"telemed/internal/handlers"
	"telemed/internal/models"
	"telemed/internal/storage"
	"telemed/internal/tasks"
	"telemed/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						Телемедицинская очередь консультаций
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(&models.User{}, &models.ConsultationRecord{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	storage.InitRedis()

	dispatcher := dispatch.NewDispatcher(storage.AvgConsultDuration)
	dispatcher.OnEnded = archiveConsultation
	handlers.Dispatcher = dispatcher
	ws.Dispatcher = dispatcher

	tasks.InitScheduler(dispatcher, ws.HubInstance.NotifyAll)

	go ws.HubInstance.Run()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	apiGroup := r.Group("/api", auth.AuthMiddleware())
	{
		apiGroup.GET("/doctors", handlers.GetDoctorsHandler)
		apiGroup.GET("/doctors/:id/queue", handlers.GetDoctorQueueHandler)
		apiGroup.GET("/consultations", handlers.GetConsultationHistoryHandler)
		apiGroup.GET("/ws", ws.ConsultWebSocketHandler)
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}

// archiveConsultation сохраняет завершённую консультацию в историю.
// Вызывается диспетчером уже вне критической секции.
func archiveConsultation(c consult.Consultation) {
	record := models.ConsultationRecord{
		ConsultationID: c.ID,
		DoctorID:       c.DoctorID,
		PatientID:      c.PatientID,
		RoomName:       c.RoomName,
		StartedAt:      c.StartedAt,
		EndedAt:        time.Now(),
	}
	if err := storage.DB.Create(&record).Error; err != nil {
		log.Println("Ошибка архивирования консультации", c.ID, ":", err)
	}
}
