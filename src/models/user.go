package models

import "pbs/src/types"

type User struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Email     string `gorm:"uniqueIndex" json:"email"`
	Password  string `json:"-"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Role      string `gorm:"default:'customer'" json:"role"`

	Bookings []Booking `gorm:"foreignKey:user_id" json:"bookings,omitempty"`

	types.Timestamps
}
