package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
)

// Callback data кнопок решения в Telegram: approve_booking:<id>
const (
	ApproveBookingPrefix = "approve_booking:"
	RejectBookingPrefix  = "reject_booking:"
)

// UserLookup справочник супервизоров для текстов уведомлений
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// ChallengeLookup справочник challenges для текстов уведомлений
type ChallengeLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Challenge, error)
}

// Message готовое уведомление одному адресату
type Message struct {
	Subject string
	Body    string
}

// Composer собирает тексты уведомлений на русском
type Composer struct {
	Users      UserLookup
	Challenges ChallengeLookup
	Location   *time.Location
	BaseURL    string
	Expiry     time.Duration // срок ответа супервизора, упоминается в письмах
}

// Details данные бронирования, нужные для текстов
type Details struct {
	Booking    *model.Booking
	Supervisor *model.User
	Challenge  *model.Challenge
	StartsAt   time.Time
}

// Load подтягивает супервизора и challenge для события
func (c *Composer) Load(ctx context.Context, event Event) (*Details, error) {
	b := event.Booking

	supervisor, err := c.Users.GetByID(ctx, b.SupervisorID)
	if err != nil {
		return nil, fmt.Errorf("get supervisor: %w", err)
	}
	if supervisor == nil {
		return nil, fmt.Errorf("supervisor %d not found", b.SupervisorID)
	}

	challenge, err := c.Challenges.GetByID(ctx, b.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if challenge == nil {
		challenge = &model.Challenge{ID: b.ChallengeID, Name: fmt.Sprintf("#%d", b.ChallengeID)}
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	startsAt, err := b.SlotKey().StartsAt(loc)
	if err != nil {
		return nil, err
	}

	return &Details{
		Booking:    b,
		Supervisor: supervisor,
		Challenge:  challenge,
		StartsAt:   startsAt,
	}, nil
}

// ForRequester текст для заявителя; false, если событие ему не адресовано
func (c *Composer) ForRequester(kind EventKind, d *Details) (Message, bool) {
	if !kind.ToRequester() {
		return Message{}, false
	}

	when := formatDateTime(d.StartsAt)
	greeting := fmt.Sprintf("Здравствуйте, %s!\n\n", d.Booking.Requester.Name)
	summary := fmt.Sprintf("Оценка: %s\nСупервизор: %s\nДата и время: %s\n", d.Challenge.Name, d.Supervisor.Name, when)

	switch kind {
	case EventRequestReceived:
		return Message{
			Subject: "Заявка на оценку получена",
			Body: greeting +
				"Ваша заявка отправлена супервизору и ожидает подтверждения.\n\n" +
				summary +
				fmt.Sprintf("\nЕсли супервизор не ответит в течение %s, заявка будет отменена автоматически.\n", formatDuration(c.Expiry)),
		}, true
	case EventConfirmed:
		return Message{
			Subject: "Оценка подтверждена",
			Body:    greeting + "Супервизор подтвердил вашу оценку.\n\n" + summary,
		}, true
	case EventRejected:
		return Message{
			Subject: "Заявка на оценку отклонена",
			Body:    greeting + "К сожалению, супервизор отклонил заявку. Вы можете выбрать другое время.\n\n" + summary,
		}, true
	case EventAutoCancelled:
		return Message{
			Subject: "Заявка на оценку отменена",
			Body: greeting +
				fmt.Sprintf("Супервизор не ответил в течение %s, поэтому заявка отменена. Слот снова свободен.\n\n", formatDuration(c.Expiry)) +
				summary,
		}, true
	case EventReminder:
		return Message{
			Subject: "Напоминание об оценке",
			Body:    greeting + "Напоминаем, что оценка скоро начнётся.\n\n" + summary,
		}, true
	}
	return Message{}, false
}

// ForSupervisor текст для супервизора; false, если событие ему не адресовано
func (c *Composer) ForSupervisor(kind EventKind, d *Details) (Message, bool) {
	if !kind.ToSupervisor() {
		return Message{}, false
	}

	r := d.Booking.Requester
	var sb strings.Builder
	fmt.Fprintf(&sb, "Оценка: %s\nДата и время: %s\nЗаявитель: %s <%s>\n", d.Challenge.Name, formatDateTime(d.StartsAt), r.Name, r.Email)
	if r.Phone != "" {
		fmt.Fprintf(&sb, "Телефон: %s\n", r.Phone)
	}
	summary := sb.String()

	switch kind {
	case EventNewRequestForSupervisor:
		body := "Новая заявка на оценку.\n\n" + summary +
			fmt.Sprintf("\nОтветьте до %s, иначе заявка будет отменена автоматически.\n", formatDateTime(d.Booking.ExpiresAt.In(d.StartsAt.Location())))
		if c.BaseURL != "" {
			body += fmt.Sprintf("\nПанель заявок: %s/api/v1/supervisor/dashboard\n", strings.TrimRight(c.BaseURL, "/"))
		}
		return Message{Subject: "Новая заявка на оценку", Body: body}, true
	case EventReminder:
		return Message{
			Subject: "Напоминание об оценке",
			Body:    "Напоминаем о предстоящей оценке.\n\n" + summary,
		}, true
	}
	return Message{}, false
}

func formatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}
