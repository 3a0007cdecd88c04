package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/repository"
	"go.uber.org/zap"
)

const (
	maxSupervisorName = 120
	maxSupervisorMail = 255
	maxChallengeName  = 150
)

// SupervisorInput данные нового супервизора
type SupervisorInput struct {
	Name           string
	Email          string
	TelegramChatID *int64
}

// ChallengeInput данные нового challenge
type ChallengeInput struct {
	Name        string
	Description string
}

// DirectoryService заведение супервизоров и challenges администратором
type DirectoryService struct {
	stores Stores
	logger *zap.Logger
}

func NewDirectoryService(stores Stores, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{
		stores: stores,
		logger: logger,
	}
}

// RegisterSupervisor создаёт активного супервизора. Занятый email или чат дают ErrConflict.
func (s *DirectoryService) RegisterSupervisor(ctx context.Context, in SupervisorInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if name == "" || utf8.RuneCountInString(name) > maxSupervisorName {
		return nil, fmt.Errorf("%w: supervisor name is required (max %d chars)", ErrInvalidInput, maxSupervisorName)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || utf8.RuneCountInString(email) > maxSupervisorMail {
		return nil, fmt.Errorf("%w: invalid supervisor email", ErrInvalidInput)
	}

	user := &model.User{
		Name:           name,
		Email:          email,
		Role:           model.UserRoleSupervisor,
		IsActive:       true,
		TelegramChatID: in.TelegramChatID,
	}
	if err := s.stores.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}

	s.logger.Info("Supervisor registered",
		zap.Int64("supervisor_id", user.ID),
		zap.Bool("telegram", user.TelegramChatID != nil))
	return user, nil
}

// CreateChallenge создаёт активный challenge
func (s *DirectoryService) CreateChallenge(ctx context.Context, in ChallengeInput) (*model.Challenge, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxChallengeName {
		return nil, fmt.Errorf("%w: challenge name is required (max %d chars)", ErrInvalidInput, maxChallengeName)
	}

	c := &model.Challenge{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsActive:    true,
	}
	if err := s.stores.Challenges.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("Challenge created", zap.Int64("challenge_id", c.ID))
	return c, nil
}
