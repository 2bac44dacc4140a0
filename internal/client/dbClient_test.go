package client

import (
	"path/filepath"
	"testing"

	"checkout-engine/internal/config"
	"checkout-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDatabaseSqliteAndMigrate(t *testing.T) {
	db, err := InitDatabase(config.Database{Driver: "sqlite", URL: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range model.Tables() {
		assert.True(t, db.Migrator().HasTable(table))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestInitDatabaseUnknownDriver(t *testing.T) {
	_, err := InitDatabase(config.Database{Driver: "oracle"})
	assert.Error(t, err)
}
