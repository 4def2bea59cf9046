package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/sirupsen/logrus"
)

// CatalogFeedService serves the daily catalog feed, caching the rotation
// output per IST day.
type CatalogFeedService struct {
	rotation *RotationService
	cache    *CacheService
	logger   *logrus.Entry
}

// NewCatalogFeedService creates a new cached catalog feed
func NewCatalogFeedService(rotation *RotationService, cache *CacheService) *CatalogFeedService {
	return &CatalogFeedService{
		rotation: rotation,
		cache:    cache,
		logger:   logrus.WithField("component", "CatalogFeedService"),
	}
}

func feedCacheKey(day models.Date) string {
	return fmt.Sprintf("catalog_feed:%s", day)
}

// GetFeed returns today's feed, using cache when possible
func (s *CatalogFeedService) GetFeed(ctx context.Context) (*models.CatalogFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cacheKey := feedCacheKey(s.rotation.Today())
	if cached, found := s.cache.Get(cacheKey); found {
		if feed, ok := cached.(*models.CatalogFeed); ok {
			return feed.Clone(), nil
		}
	}

	feed := s.rotation.GetCurrentStatus()
	s.cache.Set(feedCacheKey(feed.Date), feed.Clone())

	return feed, nil
}

// Refresh drops today's cached feed and derives it again.
func (s *CatalogFeedService) Refresh(ctx context.Context) (*models.CatalogFeed, error) {
	s.cache.Delete(feedCacheKey(s.rotation.Today()))
	s.logger.Info("Catalog feed cache invalidated")
	return s.GetFeed(ctx)
}

// Reset clears the rotation state and every cached feed.
func (s *CatalogFeedService) Reset() {
	s.rotation.Reset()
	s.cache.Clear()
	s.logger.Info("Catalog feed reset")
}

// ListByStatus returns one bucket, or all of them for "all" or "".
func (s *CatalogFeedService) ListByStatus(ctx context.Context, status string) ([]*models.CatalogEntry, error) {
	feed, err := s.GetFeed(ctx)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(status) {
	case "", "all":
		all := make([]*models.CatalogEntry, 0, len(feed.Open)+len(feed.Upcoming)+len(feed.Closed))
		all = append(all, feed.Open...)
		all = append(all, feed.Upcoming...)
		all = append(all, feed.Closed...)
		return all, nil
	case string(models.PhaseOpen):
		return feed.Open, nil
	case string(models.PhaseUpcoming):
		return feed.Upcoming, nil
	case string(models.PhaseClosed):
		return feed.Closed, nil
	default:
		return nil, shared.NewValidationError("INVALID_STATUS",
			fmt.Sprintf("status must be one of open, upcoming, closed, all; got %q", status),
			"CatalogFeedService", "ListByStatus")
	}
}

// FindBySymbol looks up a single entry in today's feed.
func (s *CatalogFeedService) FindBySymbol(ctx context.Context, symbol string) (*models.CatalogEntry, error) {
	feed, err := s.GetFeed(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := feed.Find(symbol)
	if !ok {
		return nil, shared.NewNotFoundError("IPO_NOT_FOUND",
			fmt.Sprintf("no IPO with symbol %s in today's catalog", symbol),
			"CatalogFeedService", "FindBySymbol")
	}
	return entry, nil
}

// ListedPrices quotes every listed entry at its actual listing price.
func (s *CatalogFeedService) ListedPrices(ctx context.Context) ([]models.MarketPrice, error) {
	feed, err := s.GetFeed(ctx)
	if err != nil {
		return nil, err
	}

	prices := make([]models.MarketPrice, 0)
	for _, e := range feed.Closed {
		if !e.Listed || e.ActualListingPrice == nil {
			continue
		}
		price := *e.ActualListingPrice
		change := price - e.IssuePrice
		percent := 0.0
		if e.ListingGain != nil {
			percent = *e.ListingGain
		} else if e.IssuePrice > 0 {
			percent = math.Round(change/e.IssuePrice*100*100) / 100
		}
		prices = append(prices, models.MarketPrice{
			Symbol:        e.Symbol,
			Name:          e.Name,
			IssuePrice:    e.IssuePrice,
			Price:         price,
			Change:        change,
			ChangePercent: percent,
			IsPositive:    change >= 0,
		})
	}
	return prices, nil
}

// Rotation exposes the underlying engine for jobs that need its clock.
func (s *CatalogFeedService) Rotation() *RotationService {
	return s.rotation
}
