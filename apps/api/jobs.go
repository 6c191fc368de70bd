package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	storagesvc "github.com/trezcool/tathmini/services/storage"
)

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v: %v", msg, keysAndValues, err), err)
}

// newScheduler schedules the evaluation queue worker and the storage reaper.
// A run is skipped while the previous one of the same job is still running.
func newScheduler(conf *core.Config, logger core.Logger, evaluations *evaluation.Service, reaper *storagesvc.Reaper) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	if _, err := c.AddFunc(conf.Evaluation.Schedule, func() {
		n, err := evaluations.ProcessDue(context.Background())
		if err != nil {
			logger.Error(fmt.Sprintf("processing due evaluations: %v", err), err)
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("processed %d evaluations", n))
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "scheduling evaluations %q", conf.Evaluation.Schedule)
	}

	if conf.Storage.ReaperSchedule != "" {
		if _, err := c.AddFunc(conf.Storage.ReaperSchedule, func() {
			if _, err := reaper.Run(context.Background()); err != nil {
				logger.Error(fmt.Sprintf("reaping storage: %v", err), err)
			}
		}); err != nil {
			return nil, errors.Wrapf(err, "scheduling reaper %q", conf.Storage.ReaperSchedule)
		}
	}
	return c, nil
}
