package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig параметры SMTP сервера
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailSender отправляет готовое письмо
type MailSender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// SMTPSender отправка писем через go-mail
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send открывает соединение на каждое письмо
func (s *SMTPSender) Send(ctx context.Context, to string, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// EmailNotifier письма заявителю и супервизору
type EmailNotifier struct {
	composer *Composer
	sender   MailSender
}

func NewEmailNotifier(composer *Composer, sender MailSender) *EmailNotifier {
	return &EmailNotifier{composer: composer, sender: sender}
}

// Notify отправляет письма всем адресатам события; ошибки адресатов объединяются
func (n *EmailNotifier) Notify(ctx context.Context, event Event) error {
	details, err := n.composer.Load(ctx, event)
	if err != nil {
		return err
	}

	var errs []error
	if msg, ok := n.composer.ForRequester(event.Kind, details); ok {
		if err := n.sender.Send(ctx, details.Booking.Requester.Email, msg); err != nil {
			errs = append(errs, fmt.Errorf("requester: %w", err))
		}
	}
	if msg, ok := n.composer.ForSupervisor(event.Kind, details); ok && details.Supervisor.Email != "" {
		if err := n.sender.Send(ctx, details.Supervisor.Email, msg); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	return errors.Join(errs...)
}
