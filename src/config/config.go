package config

import (
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/kelseyhightower/envconfig"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// DATE_FORMAT is the wire format for booking dates. A booking holds a
// calendar day, never a time of day.
const DATE_FORMAT = "2006-01-02"

// App carries the deploy-time knobs of the facility. The slot catalog is
// configuration, not data: changing the daily windows is a redeploy, not an
// admin operation.
type App struct {
	Port            int      `envconfig:"PORT" default:"5000"`
	TimeSlots       []string `envconfig:"TIME_SLOTS" default:"09:00-11:00,11:30-13:30,14:00-16:00,16:30-18:30,19:00-21:00"`
	MinPlayers      int      `envconfig:"MIN_PLAYERS" default:"2"`
	MaxPlayers      int      `envconfig:"MAX_PLAYERS" default:"20"`
	ReceiptMaxBytes int64    `envconfig:"RECEIPT_MAX_BYTES" default:"5242880"`
	UploadDir       string   `envconfig:"UPLOAD_DIR" default:"uploads"`
	ReceiptsBucket  string   `envconfig:"S3_RECEIPTS_BUCKET"`
	PushBackend     string   `envconfig:"PUSH_BACKEND" default:"socketio"`
	WeatherAPIKey   string   `envconfig:"WEATHER_API_KEY"`
	WeatherCity     string   `envconfig:"WEATHER_CITY" default:"Zagreb"`
}

var app *App

func GetApp() *App {
	if app != nil {
		return app
	}
	var a App
	if err := envconfig.Process("", &a); err != nil {
		log.Fatalf("Error reading app config: %s\n", err.Error())
	}
	app = &a
	return app
}

// NewApp replaces the app config, used by tests
func NewApp(a *App) *App {
	app = a
	return app
}

// SlotCatalog returns the bookable windows in canonical order.
func (a *App) SlotCatalog() []string {
	return a.TimeSlots
}

func (a *App) IsTimeSlot(slot string) bool {
	return slices.Contains(a.TimeSlots, slot)
}
