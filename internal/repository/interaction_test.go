package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medconsensus-server/internal/database"
	"github.com/medconsensus-server/internal/domain"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    "testpass",
		MaxConns:    5,
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	require.NoError(t, database.Migrate(config.URL(), "../../migrations", logger))

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})
	return db
}

func TestInteractionRepository(t *testing.T) {
	db := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewInteractionRepository(db.Pool, logger)
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := repo.GetResult(ctx, "nothing|here")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save, overwrite and get", func(t *testing.T) {
		require.NoError(t, repo.SaveResult(ctx, "aspirin|warfarin", sampleResult("aspirin|warfarin", domain.SeveritySevere, 85)))
		require.NoError(t, repo.SaveResult(ctx, "aspirin|warfarin", sampleResult("aspirin|warfarin", domain.SeverityModerate, 70)))

		got, err := repo.GetResult(ctx, "aspirin|warfarin")
		require.NoError(t, err)
		assert.Equal(t, domain.SeverityModerate, got.Severity)
		assert.Equal(t, 70, got.ConfidenceScore)
		require.Len(t, got.Sources, 2)
		assert.Equal(t, domain.ProviderRxNorm, got.Sources[0].Provider)
		assert.Equal(t, 4, got.Sources[1].EventData.SeriousEvents)
	})

	t.Run("purge and delete", func(t *testing.T) {
		old := sampleResult("a|b", domain.SeverityMinor, 40)
		old.CheckedAt = time.Now().Add(-30 * 24 * time.Hour)
		require.NoError(t, repo.SaveResult(ctx, "a|b", old))

		purged, err := repo.PurgeOlderThan(ctx, time.Now().Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, purged, int64(1))

		_, err = repo.GetResult(ctx, "a|b")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.ErrorIs(t, repo.Delete(ctx, "a|b"), domain.ErrNotFound)
	})

	assert.NoError(t, repo.Ping(ctx))
}
