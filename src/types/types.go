package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Timestamps struct {
	CreatedAt time.Time `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Role string

const (
	ROLE_CUSTOMER Role = "customer"
	ROLE_ADMIN    Role = "admin"
)

type Equipment string

const (
	EQUIPMENT_INCLUDED Equipment = "included"
	EQUIPMENT_OWN      Equipment = "own"
)

type BookingStatus string

const (
	BOOKING_PENDING   BookingStatus = "pending"
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELED  BookingStatus = "cancelled"
)

// bookingTransitions is the full status graph: pending may confirm or cancel,
// confirmed may only cancel, cancelled is terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BOOKING_PENDING:   {BOOKING_CONFIRMED, BOOKING_CANCELED},
	BOOKING_CONFIRMED: {BOOKING_CANCELED},
	BOOKING_CANCELED:  {},
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransition reports whether a booking may move from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Push event names, matched by the web client's socket listeners.
const (
	EVENT_NEW_BOOKING            = "new_booking"
	EVENT_BOOKING_UPDATED        = "booking_updated"
	EVENT_BOOKING_CANCELED       = "booking_cancelled"
	EVENT_BOOKING_STATUS_UPDATED = "booking_status_updated"
	EVENT_RECEIPT_UPLOADED       = "receipt_uploaded"
)

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type CreateBookingRequestBody struct {
	BookingDate     string  `json:"booking_date" binding:"required,bookingdate"`
	TimeSlot        string  `json:"time_slot" binding:"required,timeslot"`
	NumberOfPlayers int     `json:"number_of_players" binding:"required"`
	Equipment       string  `json:"equipment" binding:"required,oneof=included own"`
	TotalPrice      float64 `json:"total_price" binding:"required,gte=0"`
}

type UpdateBookingRequestBody struct {
	BookingDate     *string  `json:"booking_date,omitempty" binding:"omitempty,bookingdate"`
	TimeSlot        *string  `json:"time_slot,omitempty" binding:"omitempty,timeslot"`
	NumberOfPlayers *int     `json:"number_of_players,omitempty"`
	Equipment       *string  `json:"equipment,omitempty" binding:"omitempty,oneof=included own"`
	TotalPrice      *float64 `json:"total_price,omitempty" binding:"omitempty,gte=0"`
}

type UpdateBookingStatusRequestBody struct {
	Status BookingStatus `json:"status" binding:"required,oneof=pending confirmed cancelled"`
}

type AvailabilityRequestParams struct {
	Date string `uri:"date" binding:"required"`
}

type RegisterUserRequestBody struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone,omitempty"`
}

type LoginUserRequestBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequestBody struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Availability is the public answer for one calendar day. The two slices
// partition the slot catalog; AvailableSlots keeps the catalog's order.
type Availability struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	BookedSlots    []string `json:"bookedSlots"`
}

type Weather struct {
	Temperature int    `json:"temperature"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Humidity    int    `json:"humidity"`
	WindSpeed   int    `json:"windSpeed"`
	City        string `json:"city"`
}

type WeatherForecastEntry struct {
	Date        string `json:"date"`
	Temperature int    `json:"temperature"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}
