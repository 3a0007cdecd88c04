package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MessageSender часть API бота, которой пользуется уведомитель
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier сообщения супервизору в Telegram.
// К новой заявке прикладываются кнопки подтверждения и отклонения.
type TelegramNotifier struct {
	composer *Composer
	bot      MessageSender
}

func NewTelegramNotifier(composer *Composer, b MessageSender) *TelegramNotifier {
	return &TelegramNotifier{composer: composer, bot: b}
}

func (n *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	if !event.Kind.ToSupervisor() {
		return nil
	}

	details, err := n.composer.Load(ctx, event)
	if err != nil {
		return err
	}
	if details.Supervisor.TelegramChatID == nil {
		return nil
	}

	msg, ok := n.composer.ForSupervisor(event.Kind, details)
	if !ok {
		return nil
	}

	params := &bot.SendMessageParams{
		ChatID: *details.Supervisor.TelegramChatID,
		Text:   msg.Body,
	}
	if event.Kind == EventNewRequestForSupervisor {
		params.ReplyMarkup = DecisionKeyboard(event.Booking.ID)
	}

	if _, err := n.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// DecisionKeyboard кнопки решения по заявке
func DecisionKeyboard(bookingID int64) *models.InlineKeyboardMarkup {
	id := strconv.FormatInt(bookingID, 10)
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Подтвердить", CallbackData: ApproveBookingPrefix + id},
				{Text: "❌ Отклонить", CallbackData: RejectBookingPrefix + id},
			},
		},
	}
}
