package harvest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedule runs fn on the standard five-field cron spec (descriptors such as
// "@daily" and "@every 6h" are accepted) until ctx is cancelled. A run that
// is still going when the next one is due causes that next one to be
// skipped. Schedule waits for a running fn to return before it returns.
func Schedule(ctx context.Context, spec string, logger *slog.Logger, fn func(context.Context)) error {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { fn(ctx) }); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("harvest scheduled", "schedule", spec, "next", c.Entries()[0].Next)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
