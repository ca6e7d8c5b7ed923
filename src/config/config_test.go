package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDefaults(t *testing.T) {
	app = nil
	a := GetApp()
	require.NotNil(t, a)
	assert.Equal(t, 5000, a.Port)
	assert.Equal(t, 2, a.MinPlayers)
	assert.Equal(t, 20, a.MaxPlayers)
	assert.EqualValues(t, 5*1024*1024, a.ReceiptMaxBytes)
	assert.Len(t, a.SlotCatalog(), 5)
	assert.Equal(t, "09:00-11:00", a.SlotCatalog()[0])
	assert.Equal(t, "19:00-21:00", a.SlotCatalog()[4])
}

func TestIsTimeSlot(t *testing.T) {
	a := NewApp(&App{TimeSlots: []string{"09:00-11:00", "11:30-13:30"}})
	assert.True(t, a.IsTimeSlot("09:00-11:00"))
	assert.False(t, a.IsTimeSlot("09:00-11:30"))
	assert.False(t, a.IsTimeSlot(""))
}

func TestGetDSN(t *testing.T) {
	t.Setenv("DATABASE_HOST", "localhost")
	t.Setenv("DATABASE_PORT", "5432")
	t.Setenv("DATABASE_USER", "pbs")
	t.Setenv("DATABASE_PASSWORD", "secret")
	t.Setenv("DATABASE_NAME", "pbs")
	t.Setenv("DATABASE_SSLMODE", "disable")
	t.Setenv("DATABASE_TIMEZONE", "Europe/Zagreb")

	dsn := GetDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=pbs")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "TimeZone=Europe/Zagreb")
}
