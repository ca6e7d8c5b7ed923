package boot

import (
	"log"
	"time"

	"pbs/src/common"
	"pbs/src/db"
	"pbs/src/lib"
	"pbs/src/models"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Booking{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitScheduler starts the hourly sweep that cancels pending bookings whose
// date has already passed.
func InitScheduler() {
	id, err := lib.CreateCronJob(common.ExpireStaleBookings, time.Hour)
	if err != nil {
		log.Printf("Error scheduling stale-booking sweep: %s\n", err.Error())
		return
	}
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sched.Start()
	log.Printf("Scheduled stale-booking sweep: %s\n", *id)
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
	}
}
