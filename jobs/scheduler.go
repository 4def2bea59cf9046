package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules evaluated in a fixed timezone.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Entry
}

// NewScheduler creates a scheduler whose schedules are interpreted in loc.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logrus.WithField("component", "Scheduler"),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to return
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob registers a job with a standard five-field cron schedule or a
// descriptor such as "@every 30m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule": schedule,
		"job":      job.Name(),
	}).Info("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.logger.WithField("job", job.Name()).Info("Running job immediately")
	return job.Run()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	s.logger.WithField("job", job.Name()).Debug("Running job")

	if err := job.Run(); err != nil {
		s.logger.WithError(err).WithField("job", job.Name()).Error("Job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"duration": time.Since(start),
	}).Debug("Job completed")
}
