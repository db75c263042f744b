package tasks

import (
	"log"
	"os"
	"strconv"
	"time"

	"telemed/internal/dispatch"
	"telemed/internal/models"
	"telemed/internal/storage"

	"github.com/robfig/cron/v3"
)

var (
	dispatcher *dispatch.Dispatcher
	deliver    func([]dispatch.Notification)
)

// ExpireStaleConsultations завершает консультации, висящие дольше лимита.
// Ядро таймеров не заводит — что считать протухшей консультацией, решает
// эта задача, а завершение идёт обычным путём через EndConsultation,
// так что пациент получает то же consultation_ended, что и при ручном завершении.
func ExpireStaleConsultations() {
	ttl := 120 * time.Minute
	if val := os.Getenv("CONSULT_TTL_MINUTES"); val != "" {
		if m, err := strconv.Atoi(val); err == nil && m > 0 {
			ttl = time.Duration(m) * time.Minute
		}
	}

	cutoff := time.Now().Add(-ttl)
	stale := dispatcher.StaleConsultations(cutoff)
	if len(stale) == 0 {
		return
	}

	for _, id := range stale {
		notifs, err := dispatcher.EndConsultation(id)
		if err != nil {
			// Консультацию успели завершить вручную — это не сбой.
			continue
		}
		log.Printf("Консультация %s завершена по таймауту.\n", id)
		deliver(notifs)
	}
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler(d *dispatch.Dispatcher, deliverFn func([]dispatch.Notification)) *cron.Cron {
	dispatcher = d
	deliver = deliverFn

	c := cron.New(cron.WithSeconds())

	// Задача завершения протухших консультаций каждую минуту.
	_, err := c.AddFunc("0 * * * * *", ExpireStaleConsultations)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи ExpireStaleConsultations:", err)
	}

	// Задача очистки старых архивных записей, каждый день в 03:00.
	_, err = c.AddFunc("0 0 3 * * *", CleanOldConsultationRecords)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи CleanOldConsultationRecords:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}

func CleanOldConsultationRecords() {
	threshold := time.Now().AddDate(0, 0, -90)
	if err := storage.DB.Where("ended_at < ?", threshold).Delete(&models.ConsultationRecord{}).Error; err != nil {
		log.Println("Ошибка при удалении старых записей консультаций:", err)
	} else {
		log.Println("Старые записи консультаций успешно удалены.")
	}
}
