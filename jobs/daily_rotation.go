package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/sirupsen/logrus"
)

// DailyRotationJob re-derives the catalog feed just after IST midnight and,
// under the calendar driver, settles the entries that listed.
type DailyRotationJob struct {
	Feed       *services.CatalogFeedService
	Settlement *ListingSettlementJob
}

func NewDailyRotationJob(feed *services.CatalogFeedService, settlement *ListingSettlementJob) *DailyRotationJob {
	return &DailyRotationJob{Feed: feed, Settlement: settlement}
}

func (j *DailyRotationJob) Name() string { return "daily_rotation" }

func (j *DailyRotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	feed, err := j.Feed.Refresh(ctx)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"component": "DailyRotationJob",
		"date":      feed.Date,
		"open":      len(feed.Open),
		"upcoming":  len(feed.Upcoming),
		"closed":    len(feed.Closed),
	}).Info("Daily rotation completed")

	if j.Settlement == nil {
		return nil
	}
	return j.Settlement.Run()
}
