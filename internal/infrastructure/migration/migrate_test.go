package migration

import (
	"io"
	"os"
	"testing"

	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSource_BothDriversShareVersions(t *testing.T) {
	versions := map[string][]uint{}
	for _, driver := range []string{"postgres", "sqlite"} {
		src, err := Source(driver)
		require.NoError(t, err)

		v, err := src.First()
		require.NoError(t, err)
		for {
			versions[driver] = append(versions[driver], v)

			up, _, err := src.ReadUp(v)
			require.NoError(t, err)
			body, err := io.ReadAll(up)
			require.NoError(t, err)
			require.NoError(t, up.Close())
			assert.Contains(t, string(body), "users")

			down, _, err := src.ReadDown(v)
			require.NoError(t, err, "version %d of %s needs a down migration", v, driver)
			require.NoError(t, down.Close())

			v, err = src.Next(v)
			if err != nil {
				assert.ErrorIs(t, err, os.ErrNotExist)
				break
			}
		}
	}
	assert.Equal(t, versions["postgres"], versions["sqlite"])
}

func TestSource_UnknownDriver(t *testing.T) {
	_, err := Source("mysql")
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(nil, "mysql", zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrator_SQLiteUpDown(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir() + "/flexidesk.db"}
	db, err := Open(cfg)
	require.NoError(t, err)

	m, err := New(db, "sqlite", zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// applying twice is a no-op
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
}
