//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/flexidesk/backend/internal/domain/identity"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("flexidesk_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.New(sqlDB, "postgres", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestGormUserRepository_Postgres(t *testing.T) {
	db := newPostgresDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	user, err := identity.NewUser("Operator", "secret123")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, user))

	dup, err := identity.NewUser("operator", "secret456")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)

	found, err := repo.FindByUsername(ctx, "OPERATOR")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.True(t, found.VerifyPassword("secret123"))

	require.NoError(t, found.SetPassword("changed789"))
	require.NoError(t, repo.Update(ctx, found))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.VerifyPassword("changed789"))

	exists, err := repo.ExistsByUsername(ctx, "operator")
	require.NoError(t, err)
	assert.True(t, exists)
}
