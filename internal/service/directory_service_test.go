package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterSupervisor(t *testing.T) {
	env := newTestEnv(t, t0)
	directory := NewDirectoryService(env.stores, zap.NewNop())

	chatID := int64(4242)
	user, err := directory.RegisterSupervisor(t.Context(), SupervisorInput{
		Name:           "  Мария Иванова ",
		Email:          "Maria@Example.com",
		TelegramChatID: &chatID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Мария Иванова", user.Name)
	assert.Equal(t, "maria@example.com", user.Email)
	assert.True(t, user.CanSupervise())

	bound, err := env.supervisors.GetByTelegramChatID(t.Context(), chatID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, bound.ID)

	// Новый супервизор сразу может объявлять слоты и принимать заявки
	days, err := env.availability.AvailableMonth(t.Context(), user.ID, 2025, 6)
	require.NoError(t, err)
	assert.Empty(t, days)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := directory.RegisterSupervisor(t.Context(), SupervisorInput{Name: "Other", Email: "maria@example.com"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("duplicate chat", func(t *testing.T) {
		_, err := directory.RegisterSupervisor(t.Context(), SupervisorInput{Name: "Other", Email: "other@example.com", TelegramChatID: &chatID})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("invalid input", func(t *testing.T) {
		for _, in := range []SupervisorInput{
			{Name: "", Email: "a@example.com"},
			{Name: strings.Repeat("Ж", 121), Email: "a@example.com"},
			{Name: "Anna", Email: "not-an-email"},
		} {
			_, err := directory.RegisterSupervisor(t.Context(), in)
			assert.ErrorIs(t, err, ErrInvalidInput, in.Name)
		}
	})
}

func TestCreateChallenge(t *testing.T) {
	env := newTestEnv(t, t0)
	directory := NewDirectoryService(env.stores, zap.NewNop())

	c, err := directory.CreateChallenge(t.Context(), ChallengeInput{Name: " Frontend ", Description: "React"})
	require.NoError(t, err)
	assert.Equal(t, "Frontend", c.Name)
	assert.NotEqual(t, env.challenge.ID, c.ID)

	env.declare(t, "2025-06-10", "09:00")
	in := env.request("2025-06-10", "09:00")
	in.ChallengeID = c.ID
	booking, err := env.bookings.RequestBooking(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, c.ID, booking.ChallengeID)

	_, err = directory.CreateChallenge(t.Context(), ChallengeInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
