package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/config"
	"github.com/phsayre/pdf-uploader/internal/logging"
	"github.com/phsayre/pdf-uploader/internal/notify"
	"github.com/phsayre/pdf-uploader/internal/pipeline"
	"github.com/phsayre/pdf-uploader/internal/store"
	"github.com/phsayre/pdf-uploader/internal/transfer"
)

// app holds the components shared by the pass commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
	store    store.Store
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logCfg, err := cfg.Logging()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	return &app{cfg: cfg, logger: logger, closeLog: closeLog, store: st}, nil
}

// runner wires a pass runner. observer may be nil.
func (a *app) runner(observer pipeline.Observer) (*pipeline.Runner, error) {
	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}

	reporter, err := pipeline.NewReporter(notifier, a.store, &pipeline.ReporterConfig{
		From: a.cfg.Mail.From,
		To:   a.cfg.Mail.To,
	})
	if err != nil {
		return nil, err
	}

	engine := transfer.New(a.store, &transfer.Config{
		ChunkSize: a.cfg.Transfer.ChunkSize,
		Logger:    a.logger.Named("transfer"),
	})

	return pipeline.New(a.store, engine, reporter, &pipeline.Config{
		WatchDir:     a.cfg.WatchDir,
		ArchiveDir:   a.cfg.ArchiveDir,
		ErrorDir:     a.cfg.ErrorDir,
		DuplicateDir: a.cfg.DuplicateDir,
		Logger:       a.logger.Named("pipeline"),
		Observer:     observer,
	})
}

func (a *app) notifier() (notify.Notifier, error) {
	if !a.cfg.Mail.Enabled {
		return notify.LogOnly{Logger: a.logger.Named("notify")}, nil
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     a.cfg.Mail.Host,
		Port:     a.cfg.Mail.Port,
		Username: a.cfg.Mail.Username,
		Password: a.cfg.Mail.Password,
		TLS:      a.cfg.Mail.TLS,
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close record store", zap.Error(err))
	}
	_ = a.closeLog()
}
