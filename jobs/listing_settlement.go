package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/sirupsen/logrus"
)

// ListingSettlementJob releases allotment results for pending applications of
// every listed catalog entry. Settled applications leave the pending status, so
// re-running the job is harmless.
type ListingSettlementJob struct {
	Feed         *services.CatalogFeedService
	Applications *services.ApplicationService
}

func NewListingSettlementJob(feed *services.CatalogFeedService, applications *services.ApplicationService) *ListingSettlementJob {
	return &ListingSettlementJob{Feed: feed, Applications: applications}
}

func (j *ListingSettlementJob) Name() string { return "listing_settlement" }

func (j *ListingSettlementJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	feed, err := j.Feed.GetFeed(ctx)
	if err != nil {
		return err
	}

	entries, settled, failed := 0, 0, 0
	for _, entry := range feed.Closed {
		if !entry.Listed {
			continue
		}
		entries++

		n, err := j.Applications.SettleListedEntry(ctx, entry)
		settled += n
		if err != nil {
			failed++
			logrus.WithError(err).WithField("symbol", entry.Symbol).Error("Failed to settle listed entry")
		}
	}

	logrus.WithFields(logrus.Fields{
		"component": "ListingSettlementJob",
		"entries":   entries,
		"settled":   settled,
		"failed":    failed,
	}).Info("Listing settlement completed")

	if failed > 0 {
		return fmt.Errorf("%d of %d listed entries failed to settle", failed, entries)
	}
	return nil
}
