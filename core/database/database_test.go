package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	t.Run("Invalid Connection", func(t *testing.T) {
		cfg := Config{
			Host:           "localhost",
			Port:           9999, // Unused port
			User:           "root",
			Password:       "wrongpassword",
			Name:           "wordpress",
			TimeoutSeconds: 1,
		}

		db, err := Connect(cfg)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("Unsupported Driver", func(t *testing.T) {
		db, err := Connect(Config{Driver: "oracle"})
		assert.EqualError(t, err, `unsupported database driver "oracle"`)
		assert.Nil(t, db)
	})

	t.Run("SQLite", func(t *testing.T) {
		db, err := Connect(Config{Driver: "sqlite", Name: ":memory:"})
		require.NoError(t, err)
		require.NoError(t, db.Exec("CREATE TABLE t (id INTEGER)").Error)
		// single connection keeps the in-memory database alive
		require.NoError(t, db.Exec("INSERT INTO t (id) VALUES (1)").Error)

		var n int64
		require.NoError(t, db.Table("t").Count(&n).Error)
		assert.Equal(t, int64(1), n)
	})
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3306, User: "wp", Password: "p@ss/word", Name: "site"}
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t,
		"wp:p%40ss%2Fword@tcp(db:3306)/site?charset=utf8mb4&parseTime=True&loc=Local&timeout=30s&readTimeout=30s&writeTimeout=30s",
		cfg.DSN())

	cfg.TimeoutSeconds = 5
	assert.Contains(t, cfg.DSN(), "timeout=5s&readTimeout=5s&writeTimeout=5s")
}
