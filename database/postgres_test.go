package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSQLStatements(t *testing.T) {
	content := `
-- header comment
CREATE TABLE a (
    id INT
);

-- another
CREATE INDEX idx ON a (id);
SELECT 1`

	statements := parseSQLStatements(content)
	require.Len(t, statements, 3)
	assert.Equal(t, "CREATE TABLE a ( id INT )", statements[0])
	assert.Equal(t, "CREATE INDEX idx ON a (id)", statements[1])
	assert.Equal(t, "SELECT 1", statements[2])
}

func TestSchemaParses(t *testing.T) {
	content, err := os.ReadFile("schema.sql")
	require.NoError(t, err)

	statements := parseSQLStatements(string(content))
	assert.Len(t, statements, 5)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(&pq.Error{Code: "40001"}))
	assert.True(t, isRetryableError(&pq.Error{Code: "40P01"}))
	assert.True(t, isRetryableError(&pq.Error{Code: "08006"}))
	assert.False(t, isRetryableError(&pq.Error{Code: "23505"}))
	assert.True(t, isRetryableError(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryableError(sql.ErrNoRows))

	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}

func TestExecuteWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2, SlowQueryThreshold: time.Second}

	calls := 0
	err := executeWithRetry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = executeWithRetry(context.Background(), policy, func() error {
		calls++
		return sql.ErrNoRows
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, 1, calls)

	calls = 0
	err = executeWithRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 2*time.Second, p.delay(10))
}

// openTestDB connects to TEST_DATABASE_URL and applies the schema, skipping
// when no database is reachable.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = "postgres://localhost/ipo_backend_test?sslmode=disable"
	}
	cfg := shared.NewDefaultUnifiedConfiguration().Database
	cfg.PingTimeout = 2 * time.Second

	db, err := Open(url, &cfg)
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	content, err := os.ReadFile("schema.sql")
	require.NoError(t, err)
	require.NoError(t, MigrateSQL(db, string(content)))
	return db
}

func TestPostgresApplicationLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	apps := NewApplicationRepository(db)

	userID := uuid.New()
	user, err := users.EnsureUser(ctx, userID, 100000)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, user.Balance)

	balance, err := users.IncrementBalance(ctx, userID, -15000)
	require.NoError(t, err)
	assert.Equal(t, 85000.0, balance)

	_, err = users.IncrementBalance(ctx, userID, -1000000)
	assert.True(t, shared.IsStateConflict(err))
	_, err = users.IncrementBalance(ctx, uuid.New(), 10)
	assert.True(t, shared.IsNotFound(err))

	symbol := "PG" + strings.ToUpper(uuid.NewString()[:8])
	now := time.Now().UTC().Truncate(time.Millisecond)
	app := newApplication(symbol, userID, now)
	require.NoError(t, apps.Create(ctx, app))

	dup := newApplication(symbol, userID, now)
	assert.True(t, shared.IsStateConflict(apps.Create(ctx, dup)))

	loaded, err := apps.FindActive(ctx, symbol, userID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, loaded.ID)
	assert.Equal(t, models.StatusPending, loaded.Status)
	assert.Nil(t, loaded.ListingPrice)

	price, pl := 110.0, 1500.0
	loaded.Status = models.StatusListed
	loaded.Phase = models.TimelineListed
	loaded.ListingPrice = &price
	loaded.ProfitLoss = &pl
	loaded.UpdatedAt = time.Now()
	require.NoError(t, apps.Update(ctx, loaded, models.StatusPending))

	stale := loaded.Clone()
	stale.Status = models.StatusNotAllotted
	assert.True(t, shared.IsStateConflict(apps.Update(ctx, stale, models.StatusPending)))

	listed, err := apps.ListBySymbolAndStatus(ctx, symbol, models.StatusListed)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].ListingPrice)
	assert.Equal(t, 110.0, *listed[0].ListingPrice)

	listedCopy := loaded.Clone()
	loaded.Withdrawn = true
	require.NoError(t, apps.Update(ctx, loaded, models.StatusListed))
	assert.True(t, shared.IsStateConflict(apps.Update(ctx, loaded, models.StatusListed)), "second withdrawal")
	_, err = apps.FindActive(ctx, symbol, userID)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, apps.RestoreWithdrawal(ctx, listedCopy))
	restored, err := apps.FindActive(ctx, symbol, userID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, restored.ID)
	restored.Withdrawn = true
	require.NoError(t, apps.Update(ctx, restored, models.StatusListed))

	byUser, err := apps.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	_, err = apps.FindByID(ctx, uuid.New())
	assert.True(t, shared.IsNotFound(err))
}
