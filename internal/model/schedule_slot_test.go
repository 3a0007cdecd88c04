package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "9:30", "24:00", "12:60", "12-00", "12:00:00"} {
		_, _, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewSlotKey(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	key, err := NewSlotKey(1, time.Date(2025, 6, 10, 23, 30, 0, 0, moscow), "14:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), key.Date)
	assert.Equal(t, "1/2025-06-10/14:00", key.String())

	_, err = NewSlotKey(0, time.Now(), "14:00")
	assert.Error(t, err)
	_, err = NewSlotKey(1, time.Time{}, "14:00")
	assert.Error(t, err)
	_, err = NewSlotKey(1, time.Now(), "2pm")
	assert.Error(t, err)
}

func TestSlotKey_StartsAt(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	key, err := NewSlotKey(1, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), "14:00")
	require.NoError(t, err)

	utc, err := key.StartsAt(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC), utc)

	local, err := key.StartsAt(moscow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC), local.UTC())
}

func TestBookingStatus(t *testing.T) {
	assert.True(t, BookingStatusPending.IsActive())
	assert.True(t, BookingStatusConfirmed.IsActive())
	assert.False(t, BookingStatusRejected.IsActive())
	assert.False(t, BookingStatusAutoCancelled.IsActive())

	assert.False(t, BookingStatusPending.IsTerminal())
	assert.True(t, BookingStatusAutoCancelled.IsTerminal())

	assert.True(t, BookingStatusRejected.Valid())
	assert.False(t, BookingStatus("CANCELLED").Valid())
}
