package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier пишет события в лог, когда внешние каналы не настроены
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info("Booking event",
		zap.String("event_id", event.ID.String()),
		zap.String("kind", string(event.Kind)),
		zap.Int64("booking_id", event.Booking.ID),
		zap.Int64("supervisor_id", event.Booking.SupervisorID),
		zap.String("requester_email", event.Booking.Requester.Email),
		zap.String("status", string(event.Booking.Status)))
	return nil
}
