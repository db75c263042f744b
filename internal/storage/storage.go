package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase() {
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Ошибка подключения к базе данных:", err)
	}

	DB = db
	fmt.Println("Подключение к базе данных успешно!")
}

var (
	ctx         = context.Background()
	RedisClient *redis.Client
)

func InitRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
}

// AvgConsultDuration возвращает среднюю длительность консультации для
// оценки времени ожидания. Значение читается из Redis (его может менять
// админка на лету), при недоступном Redis берётся переменная окружения,
// дальше — значение по умолчанию в 10 минут.
func AvgConsultDuration() time.Duration {
	if RedisClient != nil {
		if val, err := RedisClient.Get(ctx, "telemed:avg_consult_seconds").Result(); err == nil {
			if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
				return time.Duration(sec) * time.Second
			}
		}
	}
	if val := os.Getenv("AVG_CONSULT_SECONDS"); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return 10 * time.Minute
}
