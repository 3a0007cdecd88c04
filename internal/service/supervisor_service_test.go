package service

import (
	"testing"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeactivate_ForbiddenWithActiveBookings(t *testing.T) {
	env := newTestEnv(t, t0)
	env.declare(t, "2025-06-10", "09:00")

	booking, err := env.bookings.RequestBooking(t.Context(), env.request("2025-06-10", "09:00"))
	require.NoError(t, err)

	err = env.supervisors.Deactivate(t.Context(), env.supervisor.ID)
	assert.ErrorIs(t, err, ErrSupervisorHasActiveBookings)

	_, err = env.bookings.Reject(t.Context(), booking.ID, env.supervisor.ID)
	require.NoError(t, err)

	require.NoError(t, env.supervisors.Deactivate(t.Context(), env.supervisor.ID))

	// Неактивный супервизор не принимает заявки и скрыт из публичного календаря
	_, err = env.bookings.RequestBooking(t.Context(), env.request("2025-06-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	_, err = env.availability.AvailableMonth(t.Context(), env.supervisor.ID, 2025, 6)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.supervisors.Restore(t.Context(), env.supervisor.ID))
	_, err = env.bookings.RequestBooking(t.Context(), env.request("2025-06-10", "09:00"))
	assert.NoError(t, err)
}

func TestDeactivate_UnknownOrNotSupervisor(t *testing.T) {
	env := newTestEnv(t, t0)
	admin := env.store.AddUser(model.User{Name: "Admin", Role: model.UserRoleAdmin, IsActive: true})

	assert.ErrorIs(t, env.supervisors.Deactivate(t.Context(), 999), ErrNotFound)
	assert.ErrorIs(t, env.supervisors.Deactivate(t.Context(), admin.ID), ErrNotFound)
	assert.ErrorIs(t, env.supervisors.Restore(t.Context(), admin.ID), ErrNotFound)
}

func TestGetByTelegramChatID(t *testing.T) {
	env := newTestEnv(t, t0)
	chatID := int64(424242)
	bound := env.store.AddUser(model.User{
		Name:           "Bound",
		Role:           model.UserRoleSupervisor,
		IsActive:       true,
		TelegramChatID: &chatID,
	})

	got, err := env.supervisors.GetByTelegramChatID(t.Context(), chatID)
	require.NoError(t, err)
	assert.Equal(t, bound.ID, got.ID)

	_, err = env.supervisors.GetByTelegramChatID(t.Context(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.supervisors.Deactivate(t.Context(), bound.ID))
	_, err = env.supervisors.GetByTelegramChatID(t.Context(), chatID)
	assert.ErrorIs(t, err, ErrNotFound)
}
