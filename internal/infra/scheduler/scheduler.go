package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maintenance_scheduler/internal/app" // For the Runner interface

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunScheduler triggers the maintenance pass on a cron schedule (daemon mode).
type RunScheduler struct {
	cronEngine *cron.Cron
	runner     app.Runner
	logger     *logrus.Entry
	cronSpec   string
	runTimeout time.Duration
}

func NewRunScheduler(
	runner app.Runner,
	logger *logrus.Entry,
	cronSpec string, // e.g., "0 9 * * *" (9 AM daily)
	loc *time.Location,
	runTimeout time.Duration,
) *RunScheduler {
	return &RunScheduler{
		// SkipIfStillRunning keeps passes from overlapping inside this process.
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner:     runner,
		logger:     logger,
		cronSpec:   cronSpec,
		runTimeout: runTimeout,
	}
}

// Start registers the job and starts the cron engine.
func (s *RunScheduler) Start() error {
	s.logger.Info("Starting maintenance run scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for maintenance scheduling run.")
		s.executeRun()
	})
	if err != nil {
		return fmt.Errorf("could not add maintenance run cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.Infof("Maintenance run scheduler started with spec %q.", s.cronSpec)
	return nil
}

func (s *RunScheduler) executeRun() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	report, err := s.runner.Run(ctx, app.RunOptions{})
	if err != nil {
		if errors.Is(err, app.ErrRunInProgress) {
			s.logger.Warn("Skipping scheduled run: another run is in progress.")
			return
		}
		s.logger.WithError(err).Error("Error during scheduled maintenance run")
		return
	}
	s.logger.Infof("Scheduled run %s finished: %d/%d clients OK.", report.RunID, report.Succeeded(), len(report.Results))
}

func (s *RunScheduler) Stop() {
	s.logger.Info("Stopping maintenance run scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Maintenance run scheduler gracefully stopped.")
}
