package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/config"
	"github.com/Freeeeeet/evalcalendar/internal/controller"
	"github.com/Freeeeeet/evalcalendar/internal/controller/api"
	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/repository"
	"github.com/Freeeeeet/evalcalendar/internal/repository/base"
	"github.com/Freeeeeet/evalcalendar/internal/repository/memory"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App собранное приложение: хранилище, сервисы, уведомления, планировщик и транспорт
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Bookings     *service.BookingService
	Availability *service.AvailabilityService
	Supervisors  *service.SupervisorService

	Dispatcher *notify.Dispatcher
	Scheduler  *Scheduler
	Server     *api.Server
	Bot        *controller.BotController

	pool *pgxpool.Pool
	amqp *notify.AMQPPublisher
}

// New собирает приложение по конфигурации. Для STORE=postgres применяет миграции.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := ValidateReminderWindow(cfg.Lifecycle.ReminderSlack, cfg.Lifecycle.ReminderSweepInterval); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	stores, health, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: cfg.Notify.Timeout,
	}, logger.Named("notify"))

	a.Bookings = service.NewBookingService(stores, a.Dispatcher, service.LifecycleConfig{
		BookingExpiry: cfg.Lifecycle.BookingExpiry,
		ReminderLead:  cfg.Lifecycle.ReminderLead,
		ReminderSlack: cfg.Lifecycle.ReminderSlack,
		Location:      cfg.Timezone,
	}, service.SystemClock, logger.Named("booking"))
	a.Availability = service.NewAvailabilityService(stores, logger.Named("availability"))
	a.Supervisors = service.NewSupervisorService(stores, logger.Named("supervisor"))

	if err := a.registerNotifiers(stores); err != nil {
		a.Close()
		return nil, err
	}

	a.Scheduler = NewScheduler(a.Bookings, SchedulerConfig{
		ExpiryInterval:   cfg.Lifecycle.ExpirySweepInterval,
		ReminderInterval: cfg.Lifecycle.ReminderSweepInterval,
	}, logger.Named("scheduler"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(notify.Collectors()...)
	registry.MustRegister(SchedulerCollectors()...)
	registry.MustRegister(api.Collectors()...)

	handler := api.NewHandler(a.Bookings, a.Availability, a.Supervisors, service.SystemClock, cfg.Timezone)
	a.Server = api.NewServer(cfg.HTTPAddr, handler, cfg.AdminToken, health, registry, logger.Named("http"))

	return a, nil
}

func (a *App) openStores(ctx context.Context) (service.Stores, api.HealthCheck, error) {
	if a.Config.Store == config.StoreMemory {
		a.Logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		SeedDemo(store)
		stores := service.Stores{
			Tx:         store,
			Slots:      store.Slots(),
			Bookings:   store.Bookings(),
			Users:      store.Users(),
			Challenges: store.Challenges(),
		}
		return stores, nil, nil
	}

	pool, err := OpenPool(ctx, a.Config.DBDSN)
	if err != nil {
		return service.Stores{}, nil, err
	}
	a.pool = pool

	migrator, err := NewMigrator(pool, a.Logger.Named("migrator"))
	if err != nil {
		return service.Stores{}, nil, err
	}
	defer migrator.Close()
	if err := migrator.Run(ctx); err != nil {
		return service.Stores{}, nil, err
	}

	return PostgresStores(pool), pool.Ping, nil
}

// PostgresStores хранилища поверх пула
func PostgresStores(pool *pgxpool.Pool) service.Stores {
	return service.Stores{
		Tx:         base.NewTransactor(pool),
		Slots:      repository.NewSlotRepository(pool),
		Bookings:   repository.NewBookingRepository(pool),
		Users:      repository.NewUserRepository(pool),
		Challenges: repository.NewChallengeRepository(pool),
	}
}

func (a *App) registerNotifiers(stores service.Stores) error {
	cfg := a.Config
	composer := &notify.Composer{
		Users:      stores.Users,
		Challenges: stores.Challenges,
		Location:   cfg.Timezone,
		BaseURL:    cfg.BaseURL,
		Expiry:     cfg.Lifecycle.BookingExpiry,
	}

	if cfg.SMTP.Enabled() {
		sender := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		a.Dispatcher.Register("email", notify.NewEmailNotifier(composer, sender))
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		a.Dispatcher.Register("telegram", notify.NewTelegramNotifier(composer, b))
		a.Bot = controller.NewBotController(b, a.Bookings, a.Supervisors, a.Logger.Named("bot"))
	}

	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return err
		}
		a.amqp = publisher
		a.Dispatcher.Register("amqp", publisher)
	}

	if len(a.Dispatcher.Channels()) == 0 {
		a.Dispatcher.Register("log", notify.NewLogNotifier(a.Logger.Named("notify")))
	}
	return nil
}

// Run запускает все компоненты и блокирует до отмены ctx, затем корректно останавливает их
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Dispatcher.Start(ctx)
	a.Scheduler.Start(ctx)

	if a.Bot != nil {
		if err := a.Bot.RegisterHandlers(ctx); err != nil {
			a.Logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		go a.Bot.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	a.Logger.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer stop()
	if err := a.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	cancel()
	a.Scheduler.Stop()
	a.Dispatcher.Stop()
	a.Close()

	return runErr
}

// Close освобождает соединения с внешними системами
func (a *App) Close() {
	if a.amqp != nil {
		a.amqp.Close()
		a.amqp = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// OpenPool подключается к Postgres и проверяет соединение
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// SeedDemo супервизор и challenge для режима STORE=memory
func SeedDemo(store *memory.Store) {
	store.AddUser(model.User{
		Name:     "Demo Supervisor",
		Email:    "supervisor@example.com",
		Role:     model.UserRoleSupervisor,
		IsActive: true,
	})
	store.AddChallenge(model.Challenge{
		Name:        "Demo Challenge",
		Description: "Оценка для локальной разработки",
		IsActive:    true,
	})
}
