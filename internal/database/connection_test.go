package database

import (
	"testing"

	"conveniencia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestOpenMemoryAndMigrate(t *testing.T) {
	db, err := Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []interface{}{&models.Category{}, &models.Product{}, &models.Tab{}, &models.OrderLine{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

func TestOpenTabNumberIsUniqueOnlyWhileOpen(t *testing.T) {
	db, err := Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Create(&models.Tab{Number: "Mesa 1", Status: models.TabClosed}).Error)
	require.NoError(t, db.Create(&models.Tab{Number: "Mesa 1"}).Error)

	err = db.Create(&models.Tab{Number: "Mesa 1"}).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		url    string
		name   string
		memory bool
	}{
		{":memory:", "sqlite", true},
		{"sqlite://data.db", "sqlite", false},
		{"file::memory:?cache=shared", "sqlite", true},
		{"postgres://user:pw@localhost:5432/db", "postgres", false},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			d, memory := dialectorFor(tc.url)
			assert.Equal(t, tc.name, d.Name())
			assert.Equal(t, tc.memory, memory)
		})
	}
}
