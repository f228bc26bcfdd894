package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

// Student is the minimal projection of the platform's student record this
// service needs. Account administration lives in the identity service.
type Student struct {
	ID       uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	FullName string     `json:"full_name" gorm:"size:100"`
	Email    string     `json:"email" gorm:"size:255"`
	ClassID  *uuid.UUID `json:"class_id" gorm:"type:uuid;index"`
	IsActive bool       `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Student) TableName() string {
	return "students"
}
