package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/sirupsen/logrus"
)

// TimelineRecoveryJob rebuilds accelerated timelines from the store, typically
// once at startup.
type TimelineRecoveryJob struct {
	Store     services.ApplicationStore
	Scheduler *services.TimelineScheduler
}

func NewTimelineRecoveryJob(store services.ApplicationStore, scheduler *services.TimelineScheduler) *TimelineRecoveryJob {
	return &TimelineRecoveryJob{Store: store, Scheduler: scheduler}
}

func (j *TimelineRecoveryJob) Name() string { return "timeline_recovery" }

func (j *TimelineRecoveryJob) Run() error {
	_, err := j.Recover(context.Background())
	return err
}

// Recover loads active applications and hands them to the scheduler. It
// returns how many were accepted for recovery.
func (j *TimelineRecoveryJob) Recover(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	apps, err := j.Store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	accepted := j.Scheduler.RecoverTimelines(apps)
	logrus.WithFields(logrus.Fields{
		"component": "TimelineRecoveryJob",
		"active":    len(apps),
		"accepted":  accepted,
	}).Info("Timeline recovery started")

	return accepted, nil
}
