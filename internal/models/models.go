package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Surname      string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsDoctor     bool   `gorm:"index;default:false"` // Врач или пациент
	Specialty    string // Специализация (только для врачей)
}

// ConsultationRecord — архивная запись завершённой консультации.
// Живые консультации держит в памяти диспетчер; в базу попадает только
// история, и только в момент завершения.
type ConsultationRecord struct {
	gorm.Model
	ConsultationID string    `gorm:"uniqueIndex;not null"` // UUID консультации из диспетчера
	DoctorID       uint      `gorm:"index;not null"`
	PatientID      uint      `gorm:"index;not null"`
	RoomName       string    `gorm:"not null"`
	StartedAt      time.Time `gorm:"not null"`
	EndedAt        time.Time `gorm:"index;not null"`
}
