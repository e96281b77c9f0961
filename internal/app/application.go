package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"porthealth/internal/api"
	"porthealth/internal/auth"
	"porthealth/internal/chat"
	"porthealth/internal/config"
	"porthealth/internal/notify"
	"porthealth/internal/reminder"
	"porthealth/internal/store"
)

// Application wires the components together and owns their lifecycle.
// Initialization order follows the dependency chain:
// store, registry and verifier, chat handler, dispatcher, HTTP server.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	store      *store.Store
	registry   *chat.Registry
	dispatcher *reminder.Dispatcher
	httpServer *http.Server

	dispatcherCancel context.CancelFunc
	dispatcherDone   chan struct{}
}

func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}

	registry := chat.NewRegistry()
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	chatHandler := chat.NewHandler(registry, verifier, st, logger)
	apiServer := api.NewServer(st, verifier, chatHandler, logger)

	// The mailer is optional; a nil interface keeps the dispatcher on the
	// live-push path only. Assigning a nil *Mailer directly would produce a
	// non-nil interface value.
	var mailer reminder.Mailer
	if m := notify.New(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}); m != nil {
		mailer = m
	}

	dispatcher := reminder.NewDispatcher(st, registry, mailer, cfg.Reminder.Interval, cfg.Reminder.Window, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		store:      st,
		registry:   registry,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}, nil
}

// Start launches the reminder dispatcher and serves HTTP. It blocks until
// the server stops; a clean shutdown returns nil.
func (a *Application) Start() error {
	dispatcherCtx, cancel := context.WithCancel(context.Background())
	a.dispatcherCancel = cancel
	a.dispatcherDone = make(chan struct{})

	go func() {
		defer close(a.dispatcherDone)
		a.dispatcher.Run(dispatcherCtx)
	}()

	a.logger.Info("server listening",
		zap.String("addr", a.httpServer.Addr),
		zap.String("database_driver", a.config.Database.Driver),
	)

	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the application down: stop accepting HTTP traffic, stop the
// dispatcher, then close the store.
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown error", zap.Error(err))
	}

	if a.dispatcherCancel != nil {
		a.dispatcherCancel()
		select {
		case <-a.dispatcherDone:
		case <-shutdownCtx.Done():
			a.logger.Warn("dispatcher did not stop in time")
		}
	}

	if err := a.store.Close(); err != nil {
		return err
	}

	a.logger.Info("shutdown complete")
	return nil
}
