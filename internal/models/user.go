package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleCitizen UserRole = "CITIZEN"
	RoleOfficer UserRole = "OFFICER"
	RoleAdmin   UserRole = "ADMIN"
)

type User struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Email      string         `json:"email" gorm:"uniqueIndex;not null"`
	Password   string         `json:"-" gorm:"not null"`
	FirstName  string         `json:"firstName" gorm:"not null"`
	LastName   string         `json:"lastName" gorm:"not null"`
	Phone      *string        `json:"phone,omitempty"`
	Role       UserRole       `json:"role" gorm:"not null;default:'CITIZEN'"`
	Department *string        `json:"department,omitempty"` // set for officers only
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}
