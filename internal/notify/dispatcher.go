package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcalendar",
		Name:      "notifications_sent_total",
		Help:      "Notifications delivered by channel and event kind.",
	}, []string{"channel", "kind"})
	notificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcalendar",
		Name:      "notifications_failed_total",
		Help:      "Notification attempts that returned an error.",
	}, []string{"channel", "kind"})
	notificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evalcalendar",
		Name:      "notifications_dropped_total",
		Help:      "Events dropped because the dispatch queue was full or closed.",
	})
)

// Collectors метрики пакета для регистрации в реестре
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{notificationsSent, notificationsFailed, notificationsDropped}
}

// DispatcherConfig параметры очереди уведомлений
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type channel struct {
	name     string
	notifier Notifier
}

// Dispatcher очередь уведомлений после коммита.
// Emit никогда не блокирует вызывающего: при переполнении событие теряется с записью в лог.
type Dispatcher struct {
	cfg      DispatcherConfig
	channels []channel
	queue    chan Event
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started bool
}

// NewDispatcher создаёт диспетчер; каналы добавляются через Register
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
	}
}

// Register добавляет канал доставки. Вызывается до Start.
func (d *Dispatcher) Register(name string, n Notifier) {
	d.channels = append(d.channels, channel{name: name, notifier: n})
}

// Channels имена зарегистрированных каналов
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.name)
	}
	return names
}

// Start запускает воркеры
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	d.logger.Info("Starting notification dispatcher",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
		zap.Strings("channels", d.Channels()))

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Emit ставит событие в очередь
func (d *Dispatcher) Emit(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		notificationsDropped.Inc()
		d.logger.Error("Notification dropped: dispatcher stopped",
			zap.String("event_id", event.ID.String()),
			zap.String("kind", string(event.Kind)))
		return
	}

	select {
	case d.queue <- event:
	default:
		notificationsDropped.Inc()
		d.logger.Error("Notification dropped: queue is full",
			zap.String("event_id", event.ID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Int64("booking_id", event.Booking.ID))
	}
}

// Stop закрывает очередь и ждёт доставки оставшихся событий
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(ctx, event)
	}
}

// deliver отправляет событие во все каналы; ошибки только логируются
func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, c := range d.channels {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SendTimeout)
		err := safeNotify(sendCtx, c.notifier, event)
		cancel()

		if err != nil {
			notificationsFailed.WithLabelValues(c.name, string(event.Kind)).Inc()
			d.logger.Error("Failed to send notification",
				zap.String("channel", c.name),
				zap.String("event_id", event.ID.String()),
				zap.String("kind", string(event.Kind)),
				zap.Int64("booking_id", event.Booking.ID),
				zap.Error(err))
			continue
		}

		notificationsSent.WithLabelValues(c.name, string(event.Kind)).Inc()
		d.logger.Debug("Notification sent",
			zap.String("channel", c.name),
			zap.String("kind", string(event.Kind)),
			zap.Int64("booking_id", event.Booking.ID))
	}
}

func safeNotify(ctx context.Context, n Notifier, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notifier panicked")
		}
	}()
	return n.Notify(ctx, event)
}
