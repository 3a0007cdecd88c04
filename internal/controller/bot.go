package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Decider решения супервизора по заявкам
type Decider interface {
	Confirm(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error)
	Reject(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error)
	Dashboard(ctx context.Context, supervisorID int64) (*service.Dashboard, error)
}

// SupervisorResolver находит супервизора по чату Telegram
type SupervisorResolver interface {
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
}

// BotController Telegram бот супервизора: уведомления приходят через notify,
// здесь обрабатываются кнопки подтверждения и отклонения
type BotController struct {
	bot         *bot.Bot
	bookings    Decider
	supervisors SupervisorResolver
	logger      *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	bookings Decider,
	supervisors SupervisorResolver,
	logger *zap.Logger,
) *BotController {
	return &BotController{
		bot:         botInstance,
		bookings:    bookings,
		supervisors: supervisors,
		logger:      logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypeExact, c.HandlePending)

	// Обработчик нажатий на кнопки решения
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, notify.ApproveBookingPrefix, bot.MatchTypePrefix, c.HandleDecision)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, notify.RejectBookingPrefix, bot.MatchTypePrefix, c.HandleDecision)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "pending", Description: "📥 Заявки, ожидающие решения"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}

// HandleStart показывает ID чата, который администратор привязывает к супервизору
func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	text := fmt.Sprintf(
		"👋 Это бот уведомлений о заявках на оценку.\n\n"+
			"ID этого чата: %d\n"+
			"Передайте его администратору, чтобы получать заявки здесь.", chatID)

	if supervisor, err := c.supervisors.GetByTelegramChatID(ctx, chatID); err == nil {
		text = fmt.Sprintf("👋 %s, заявки на оценку приходят в этот чат.\n\n/pending - заявки, ожидающие решения", supervisor.Name)
	}

	c.send(ctx, b, chatID, text, nil)
}

// HandlePending список заявок на рассмотрении с кнопками решения
func (c *BotController) HandlePending(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	supervisor, err := c.supervisors.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		c.send(ctx, b, chatID, "❌ Этот чат не привязан к супервизору.", nil)
		return
	}

	dashboard, err := c.bookings.Dashboard(ctx, supervisor.ID)
	if err != nil {
		c.logger.Error("Failed to load dashboard", zap.Int64("supervisor_id", supervisor.ID), zap.Error(err))
		c.send(ctx, b, chatID, "❌ Произошла ошибка. Попробуйте позже.", nil)
		return
	}

	if len(dashboard.Pending) == 0 {
		c.send(ctx, b, chatID, "📭 Нет заявок, ожидающих решения.", nil)
		return
	}

	for _, booking := range dashboard.Pending {
		c.send(ctx, b, chatID, formatPending(booking), notify.DecisionKeyboard(booking.ID))
	}
}

// HandleDecision обрабатывает нажатие кнопки подтверждения или отклонения
func (c *BotController) HandleDecision(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	var chatID int64
	var msg *models.Message
	if callback.Message.Message != nil {
		msg = callback.Message.Message
		chatID = msg.Chat.ID
	} else {
		chatID = callback.From.ID
	}

	reply, ok := c.Decide(ctx, chatID, callback.Data)

	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
		Text:            reply,
		ShowAlert:       !ok,
	})

	// Убираем кнопки, чтобы решение нельзя было принять повторно
	if ok && msg != nil {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: msg.ID,
			Text:      msg.Text + "\n\n" + reply,
		})
		if err != nil {
			c.logger.Warn("Failed to update decision message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// Decide применяет решение из callback data от имени супервизора чата.
// Возвращает текст ответа и признак успеха.
func (c *BotController) Decide(ctx context.Context, chatID int64, data string) (string, bool) {
	var confirm bool
	var rawID string
	switch {
	case strings.HasPrefix(data, notify.ApproveBookingPrefix):
		confirm = true
		rawID = strings.TrimPrefix(data, notify.ApproveBookingPrefix)
	case strings.HasPrefix(data, notify.RejectBookingPrefix):
		rawID = strings.TrimPrefix(data, notify.RejectBookingPrefix)
	default:
		return "❌ Неверный формат", false
	}

	bookingID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "❌ Неверный формат", false
	}

	supervisor, err := c.supervisors.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		return "❌ Этот чат не привязан к супервизору", false
	}

	if confirm {
		_, err = c.bookings.Confirm(ctx, bookingID, supervisor.ID)
	} else {
		_, err = c.bookings.Reject(ctx, bookingID, supervisor.ID)
	}

	switch {
	case err == nil && confirm:
		return "✅ Оценка подтверждена", true
	case err == nil:
		return "❌ Заявка отклонена", true
	case errors.Is(err, service.ErrNotPending):
		return "⚠️ Заявка уже обработана", false
	case errors.Is(err, service.ErrNotFound):
		return "❌ Заявка не найдена", false
	}

	c.logger.Error("Failed to apply decision",
		zap.Int64("booking_id", bookingID),
		zap.Int64("supervisor_id", supervisor.ID),
		zap.Bool("confirm", confirm),
		zap.Error(err))
	return "❌ Произошла ошибка. Попробуйте позже.", false
}

func (c *BotController) send(ctx context.Context, b *bot.Bot, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func formatPending(b *model.Booking) string {
	text := fmt.Sprintf("📥 Заявка #%d\n%s %s\nЗаявитель: %s <%s>",
		b.ID, b.Date.Format("02.01.2006"), b.TimeOfDay, b.Requester.Name, b.Requester.Email)
	if b.Requester.Phone != "" {
		text += "\nТелефон: " + b.Requester.Phone
	}
	return text
}
