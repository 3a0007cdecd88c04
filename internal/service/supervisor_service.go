package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"go.uber.org/zap"
)

type SupervisorService struct {
	stores Stores
	logger *zap.Logger
}

func NewSupervisorService(stores Stores, logger *zap.Logger) *SupervisorService {
	return &SupervisorService{
		stores: stores,
		logger: logger,
	}
}

// GetByTelegramChatID активный супервизор, привязанный к чату
func (s *SupervisorService) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.stores.Users.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !user.CanSupervise() {
		return nil, ErrNotFound
	}
	return user, nil
}

// Deactivate выключает супервизора. Запрещено, пока есть активные бронирования:
// их нужно сначала подтвердить и провести либо отклонить.
func (s *SupervisorService) Deactivate(ctx context.Context, supervisorID int64) error {
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.stores.Users.GetForUpdate(ctx, supervisorID)
		if err != nil {
			return err
		}
		if user == nil || user.Role != model.UserRoleSupervisor {
			return ErrNotFound
		}
		if !user.IsActive {
			return nil
		}

		active, err := s.stores.Bookings.CountActiveBySupervisor(ctx, supervisorID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: %d", ErrSupervisorHasActiveBookings, active)
		}

		return s.stores.Users.SetActive(ctx, supervisorID, false)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Supervisor deactivated", zap.Int64("supervisor_id", supervisorID))
	return nil
}

// Restore возвращает супервизора в работу
func (s *SupervisorService) Restore(ctx context.Context, supervisorID int64) error {
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.stores.Users.GetForUpdate(ctx, supervisorID)
		if err != nil {
			return err
		}
		if user == nil || user.Role != model.UserRoleSupervisor {
			return ErrNotFound
		}
		return s.stores.Users.SetActive(ctx, supervisorID, true)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Supervisor restored", zap.Int64("supervisor_id", supervisorID))
	return nil
}
