package sync

import (
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"kashflow-sync/internal/config"
	"kashflow-sync/internal/logger"
)

// cronLogger routes cron's own messages (panics, skipped runs) into zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler reconciles on a cron spec while the device is online.
type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	l := cronLogger{}
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	if _, err := s.cron.AddFunc(s.cfg.Interval, s.runScheduled); err != nil {
		logger.Log.Error("Failed to schedule sync", zap.String("interval", s.cfg.Interval), zap.Error(err))
		return
	}
	s.cron.Start()
	logger.Log.Info("Started scheduler", zap.String("interval", s.cfg.Interval))
}

// Stop waits for a scheduled pass in flight to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) runScheduled() {
	if !s.manager.Online() {
		logger.Log.Debug("Offline, skipping scheduled sync")
		return
	}

	_, err := s.manager.Trigger(s.manager.ctx, TriggerScheduled)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		logger.Log.Info("Sync already running, skipping scheduled run")
	case err != nil && s.manager.ctx.Err() == nil:
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}
