package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/database"
	"github.com/fenilmodi00/ipo-sim-backend/jobs"
	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "let-me-in"

func newTestApp(t *testing.T, withRecovery bool) *fiber.App {
	t.Helper()

	now := func() time.Time { return time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC) }
	seed := services.CatalogSeed{Open: []models.CatalogEntry{{
		ID:            uuid.New(),
		Symbol:        "OPENCO",
		Name:          "Open Co Ltd",
		Sector:        "Technology",
		IssuePrice:    10,
		LotSize:       100,
		MinInvestment: 1000,
		Status:        models.PhaseOpen,
		OpenDate:      models.MustParseDate("2024-01-01"),
		CloseDate:     models.MustParseDate("2024-01-05"),
		ListingDate:   models.MustParseDate("2024-01-08"),
	}}}

	rng := services.NewRandomSource(1)
	rotation := services.NewRotationService(services.RotationOptions{Seed: &seed, Location: time.UTC, Now: now, Random: rng})
	cache := services.NewCacheServiceWithConfig(time.Hour, 100)
	t.Cleanup(cache.Stop)
	feed := services.NewCatalogFeedService(rotation, cache)

	store := database.NewMemoryApplicationStore()
	ledger := database.NewMemoryLedger()
	scheduler := services.NewTimelineScheduler(services.TimelineOptions{
		Now:    now,
		Timer:  func(time.Duration, func()) {},
		Random: rng,
		Store:  store,
		Ledger: ledger,
	})
	applications := services.NewApplicationService(services.ApplicationServiceOptions{
		Store:     store,
		Ledger:    ledger,
		Feed:      feed,
		Scheduler: scheduler,
		Now:       now,
	})

	var recovery *jobs.TimelineRecoveryJob
	if withRecovery {
		recovery = jobs.NewTimelineRecoveryJob(store, scheduler)
	}

	ipoHandler := NewIPOHandler(feed)
	applicationHandler := NewApplicationHandler(applications)
	checkHandler := NewCheckHandler(applications)
	timelineHandler := NewTimelineHandler(scheduler)
	adminHandler := NewAdminHandler(feed, recovery, nil)
	performanceHandler := NewPerformanceHandler(nil, cache, rotation.Metrics(), applications.Metrics())
	cacheHandler := NewCacheHandler(cache)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/ipos", ipoHandler.GetIPOs)
	api.Get("/ipos/feed", ipoHandler.GetFeed)
	api.Get("/ipos/:symbol", ipoHandler.GetIPOBySymbol)
	api.Get("/market/prices", NewMarketHandler(feed).GetMarketPrices)
	api.Post("/applications", applicationHandler.Apply)
	api.Get("/applications/:id", applicationHandler.GetApplication)
	api.Post("/applications/:id/withdraw", applicationHandler.Withdraw)
	api.Get("/users/:user_id/applications", applicationHandler.ListUserApplications)
	api.Get("/users/:user_id/balance", applicationHandler.GetUserBalance)
	api.Get("/withdrawals/eligibility", checkHandler.CheckWithdrawal)
	api.Get("/timelines", timelineHandler.ListTimelines)
	api.Get("/timelines/:symbol", timelineHandler.GetTimeline)

	admin := api.Group("/admin", AdminAuth(testAdminToken))
	admin.Post("/rotation/reset", adminHandler.ResetRotation)
	admin.Post("/rotation/refresh", adminHandler.RefreshRotation)
	admin.Post("/timelines/recover", adminHandler.RecoverTimelines)
	admin.Get("/metrics", performanceHandler.GetPerformanceMetrics)
	admin.Get("/cache", cacheHandler.GetStats)
	admin.Delete("/cache", cacheHandler.ClearCache)

	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestCatalogRoutes(t *testing.T) {
	app := newTestApp(t, false)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/ipos?status=open", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/ipos?status=archived", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["category"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/ipos/openco", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OPENCO", body["data"].(map[string]interface{})["symbol"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/ipos/NOPE", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/ipos/feed", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2024-01-03", body["data"].(map[string]interface{})["date"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/market/prices", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
}

func TestApplicationRoutes(t *testing.T) {
	app := newTestApp(t, false)
	user := uuid.NewString()

	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/applications",
		map[string]interface{}{"user_id": "not-a-uuid", "symbol": "OPENCO", "shares": 100}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/applications",
		map[string]interface{}{"user_id": user, "symbol": "OPENCO", "shares": 1000}, nil)
	require.Equal(t, http.StatusCreated, status)
	created := body["data"].(map[string]interface{})
	id := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "full_block", created["refund_mode"])

	status, body = doRequest(t, app, http.MethodPost, "/api/v1/applications",
		map[string]interface{}{"user_id": user, "symbol": "OPENCO", "shares": 1000}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state_conflict", body["category"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/applications/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["data"].(map[string]interface{})["id"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/applications/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/users/"+user+"/balance", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 90000.0, body["data"].(map[string]interface{})["balance"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/users/"+user+"/applications", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/applications/"+id+"/withdraw",
		map[string]interface{}{"user_id": uuid.NewString()}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// the timeline is still in the applied phase
	status, body = doRequest(t, app, http.MethodPost, "/api/v1/applications/"+id+"/withdraw",
		map[string]interface{}{"user_id": user}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "allotment pending")
}

func TestEligibilityAndTimelineRoutes(t *testing.T) {
	app := newTestApp(t, false)
	user := uuid.NewString()

	status, _ := doRequest(t, app, http.MethodGet, "/api/v1/withdrawals/eligibility?user_id="+user, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/withdrawals/eligibility?symbol=OPENCO&user_id="+user, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]interface{})["eligible"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/timelines/OPENCO", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/applications",
		map[string]interface{}{"user_id": user, "symbol": "OPENCO", "shares": 100, "refund_mode": "immediate_refund"}, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/timelines/openco", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "applied", body["data"].(map[string]interface{})["phase"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/timelines", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/withdrawals/eligibility?symbol=OPENCO&user_id="+user, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["data"].(map[string]interface{})["eligible"])
}

func TestAdminRoutes(t *testing.T) {
	app := newTestApp(t, false)
	auth := map[string]string{"X-Admin-Token": testAdminToken}

	status, _ := doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/admin/metrics", nil, auth)
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["services"], 2)
	assert.NotContains(t, data, "database_stats")

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/admin/rotation/refresh", nil, auth)
	assert.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodPost, "/api/v1/admin/rotation/reset", nil, auth)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2024-01-03", body["data"].(map[string]interface{})["date"])

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/admin/timelines/recover", nil, auth)
	assert.Equal(t, http.StatusConflict, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/admin/cache", nil, auth)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["size"])

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/admin/cache", nil, auth)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminRecoverTimelines(t *testing.T) {
	app := newTestApp(t, true)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/admin/timelines/recover", nil,
		map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, float64(0), body["accepted"])
}

func TestStatusFor(t *testing.T) {
	_, err := parseUUID("bad", "USER_ID")
	assert.Equal(t, fiber.StatusBadRequest, statusFor(err))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(io.EOF))
}
