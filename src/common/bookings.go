package common

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"pbs/src/config"
	"pbs/src/db"
	"pbs/src/lib"
	"pbs/src/models"
	"pbs/src/types"
	"pbs/src/utils"

	"gorm.io/gorm"
)

var (
	ErrSlotConflict      = errors.New("time slot is already booked")
	ErrNotFound          = errors.New("booking not found")
	ErrForbidden         = errors.New("admin access required")
	ErrInvalidAttachment = errors.New("receipt must be an image file")
	ErrInvalidTransition = errors.New("status change is not allowed")
)

func ListOwnBookings(userID uint) ([]models.Booking, error) {
	db := db.GetDb()
	var bookings []models.Booking
	err := db.
		Model(&models.Booking{}).
		Where(&models.Booking{UserID: userID}).
		Order("created_at DESC").
		Find(&bookings).
		Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// AdminBooking is a booking row joined with the owner's contact fields, the
// shape the staff dashboard renders.
type AdminBooking struct {
	models.Booking
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func ListAllBookings(callerRole string) ([]AdminBooking, error) {
	if callerRole != string(types.ROLE_ADMIN) {
		return nil, ErrForbidden
	}
	db := db.GetDb()
	var rows []AdminBooking
	err := db.
		Model(&models.Booking{}).
		Select("bookings.*, users.first_name, users.last_name, users.email, users.phone").
		Joins("JOIN users ON users.id = bookings.user_id").
		Order("bookings.created_at DESC").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBooking returns the booking only to its owner, or to an admin. A booking
// owned by someone else reads as not found so non-owners cannot probe ids.
func GetBooking(id, callerID uint, callerRole string) (*models.Booking, error) {
	db := db.GetDb()
	q := db.Model(&models.Booking{}).Where("id = ?", id)
	if callerRole != string(types.ROLE_ADMIN) {
		q = q.Where("user_id = ?", callerID)
	}
	var booking models.Booking
	if err := q.First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// CreateBooking inserts a pending booking after the slot conflict check. The
// check and the insert run in one transaction, and the partial unique index
// still backstops the race where two creates pass the check concurrently.
func CreateBooking(userID uint, body *types.CreateBookingRequestBody) (*models.Booking, error) {
	booking := models.Booking{
		UserID:          userID,
		BookingDate:     body.BookingDate,
		TimeSlot:        body.TimeSlot,
		NumberOfPlayers: body.NumberOfPlayers,
		Equipment:       body.Equipment,
		TotalPrice:      body.TotalPrice,
		Status:          types.BOOKING_PENDING,
	}
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.Booking
		err := tx.
			Model(&models.Booking{}).
			Where("booking_date = ? AND time_slot = ? AND status <> ?", body.BookingDate, body.TimeSlot, types.BOOKING_CANCELED).
			First(&existing).
			Error
		if err == nil {
			return ErrSlotConflict
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&booking).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = ErrSlotConflict
		}
		return nil, err
	}
	// Staff dashboards need new bookings regardless of room membership.
	lib.GetHub().BroadcastAll(types.EVENT_NEW_BOOKING, types.JSONB{
		"message": "New booking created",
		"booking": booking,
	})
	return &booking, nil
}

// UpdateBooking applies a partial reschedule for the owner. Fields left out
// of the request keep their stored value. Moving to an occupied slot fails
// with ErrSlotConflict; the booking's own row never counts as a conflict.
func UpdateBooking(id, callerID uint, body *types.UpdateBookingRequestBody) (*models.Booking, error) {
	db := db.GetDb()
	var booking models.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Model(&models.Booking{}).
			Where("id = ? AND user_id = ?", id, callerID).
			First(&booking).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		targetDate := booking.BookingDate
		targetSlot := booking.TimeSlot
		updates := map[string]any{}
		if body.BookingDate != nil {
			targetDate = *body.BookingDate
			updates["booking_date"] = targetDate
		}
		if body.TimeSlot != nil {
			targetSlot = *body.TimeSlot
			updates["time_slot"] = targetSlot
		}
		if body.NumberOfPlayers != nil {
			updates["number_of_players"] = *body.NumberOfPlayers
		}
		if body.Equipment != nil {
			updates["equipment"] = *body.Equipment
		}
		if body.TotalPrice != nil {
			updates["total_price"] = *body.TotalPrice
		}
		if len(updates) == 0 {
			return nil
		}

		if targetDate != booking.BookingDate || targetSlot != booking.TimeSlot {
			var conflict models.Booking
			err := tx.
				Model(&models.Booking{}).
				Where("booking_date = ? AND time_slot = ? AND id <> ? AND status <> ?", targetDate, targetSlot, id, types.BOOKING_CANCELED).
				First(&conflict).
				Error
			if err == nil {
				return ErrSlotConflict
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", id).
			Updates(updates).
			Error; err != nil {
			return err
		}
		return tx.
			Model(&models.Booking{}).
			Where("id = ?", id).
			First(&booking).
			Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = ErrSlotConflict
		}
		return nil, err
	}
	lib.GetHub().BroadcastToUser(booking.UserID, types.EVENT_BOOKING_UPDATED, types.JSONB{
		"message": "Booking updated",
		"booking": booking,
	})
	return &booking, nil
}

// CancelBooking releases the slot. Cancelling an already-cancelled booking is
// a no-op ack and re-emits nothing.
func CancelBooking(id, callerID uint) error {
	db := db.GetDb()
	var booking models.Booking
	alreadyCanceled := false
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Model(&models.Booking{}).
			Where("id = ? AND user_id = ?", id, callerID).
			First(&booking).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if booking.Status == types.BOOKING_CANCELED {
			alreadyCanceled = true
			return nil
		}
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", id).
			Update("status", types.BOOKING_CANCELED).
			Error; err != nil {
			return err
		}
		booking.Status = types.BOOKING_CANCELED
		return nil
	})
	if err != nil {
		return err
	}
	if !alreadyCanceled {
		lib.GetHub().BroadcastToUser(booking.UserID, types.EVENT_BOOKING_CANCELED, types.JSONB{
			"message": "Booking cancelled",
			"booking": booking,
		})
	}
	return nil
}

// UpdateBookingStatus is the admin status operation. Transitions outside the
// status graph are rejected, including any move out of cancelled. The push
// recipient is the booking's owner read fresh from the record, never the
// admin caller.
func UpdateBookingStatus(id uint, newStatus types.BookingStatus, callerRole string) (*models.Booking, error) {
	if callerRole != string(types.ROLE_ADMIN) {
		return nil, ErrForbidden
	}
	db := db.GetDb()
	var booking models.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Model(&models.Booking{}).
			Where("id = ?", id).
			First(&booking).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !booking.Status.CanTransition(newStatus) {
			return ErrInvalidTransition
		}
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", id).
			Update("status", newStatus).
			Error; err != nil {
			return err
		}
		booking.Status = newStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	lib.GetHub().BroadcastToUser(booking.UserID, types.EVENT_BOOKING_STATUS_UPDATED, types.JSONB{
		"message": "Booking status updated to " + string(newStatus),
		"booking": booking,
	})
	if newStatus == types.BOOKING_CONFIRMED {
		var owner models.User
		if err := db.First(&owner, booking.UserID).Error; err == nil {
			lib.SendMail(lib.BookingConfirmationMail(owner.Email, booking.BookingDate, booking.TimeSlot, booking.NumberOfPlayers))
		}
	}
	return &booking, nil
}

// AttachReceipt validates and stores a payment receipt image, then records
// the stored name on the booking. The artifact write happens outside any
// database transaction so a slow upload cannot serialize other bookings.
func AttachReceipt(ctx context.Context, id, callerID uint, filename, contentType string, size int64, body io.Reader) (string, *models.Booking, error) {
	app := config.GetApp()
	if !strings.HasPrefix(contentType, "image/") || size <= 0 || size > app.ReceiptMaxBytes {
		return "", nil, ErrInvalidAttachment
	}
	db := db.GetDb()
	var booking models.Booking
	err := db.
		Model(&models.Booking{}).
		Where("id = ? AND user_id = ?", id, callerID).
		First(&booking).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}

	name := utils.ReceiptObjectName(filename)
	stored, err := lib.GetReceiptStore().Put(ctx, name, contentType, body)
	if err != nil {
		return "", nil, err
	}

	if err := db.
		Model(&models.Booking{}).
		Where("id = ?", id).
		Update("payment_receipt", stored).
		Error; err != nil {
		return "", nil, err
	}
	booking.PaymentReceipt = &stored

	lib.GetHub().BroadcastToUser(booking.UserID, types.EVENT_RECEIPT_UPLOADED, types.JSONB{
		"message": "Payment receipt uploaded",
		"booking": booking,
	})
	return stored, &booking, nil
}

// ResolveAvailability partitions the slot catalog for one date. Cancelled
// bookings do not occupy their slot. Safe to call unauthenticated, no side
// effects.
func ResolveAvailability(date string) (*types.Availability, error) {
	db := db.GetDb()
	var booked []string
	err := db.
		Model(&models.Booking{}).
		Where("booking_date = ? AND status <> ?", date, types.BOOKING_CANCELED).
		Pluck("time_slot", &booked).
		Error
	if err != nil {
		return nil, err
	}
	catalog := config.GetApp().SlotCatalog()
	available := make([]string, 0, len(catalog))
	for _, slot := range catalog {
		if !slices.Contains(booked, slot) {
			available = append(available, slot)
		}
	}
	return &types.Availability{
		Date:           date,
		AvailableSlots: available,
		BookedSlots:    booked,
	}, nil
}

// ExpireStaleBookings cancels pending bookings whose date has passed. Runs
// from the scheduler; confirmed bookings are left for staff to settle.
func ExpireStaleBookings() {
	today := time.Now().Format(config.DATE_FORMAT)
	db := db.GetDb()
	res := db.
		Model(&models.Booking{}).
		Where("status = ? AND booking_date < ?", types.BOOKING_PENDING, today).
		Update("status", types.BOOKING_CANCELED)
	if res.Error != nil {
		log.Printf("Error expiring stale bookings: %s\n", res.Error.Error())
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Cancelled %d stale pending bookings\n", res.RowsAffected)
	}
}
