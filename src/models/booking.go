package models

import "pbs/src/types"

// Booking is a customer's claim on one catalog slot for one date. The partial
// unique index is the authority for slot exclusivity: at most one row per
// (booking_date, time_slot) may be non-cancelled, across all service
// instances, regardless of what the application-level conflict check saw.
type Booking struct {
	ID              uint                `gorm:"primarykey" json:"id"`
	UserID          uint                `json:"user_id"`
	// Stored as text in the 2006-01-02 wire format; the binding validator
	// guarantees the shape before a row is ever written.
	BookingDate     string              `gorm:"index:idx_bookings_active_slot,unique,where:status <> 'cancelled',priority:1" json:"booking_date"`
	TimeSlot        string              `gorm:"index:idx_bookings_active_slot,unique,priority:2" json:"time_slot"`
	NumberOfPlayers int                 `json:"number_of_players"`
	Equipment       string              `json:"equipment"`
	TotalPrice      float64             `json:"total_price"`
	PaymentReceipt  *string             `json:"payment_receipt,omitempty"`
	Status          types.BookingStatus `gorm:"default:'pending'" json:"status"`

	User *User `gorm:"foreignKey:user_id" json:"user,omitempty"`

	types.Timestamps
}
