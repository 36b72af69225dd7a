package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wtfGram/database"
	"wtfGram/domain"
)

func TestConnectionInfo(t *testing.T) {
	pg := DefaultDatabaseConfig()
	assert.Equal(t, "host=localhost port=5432 user=postgres dbname=wtf_gram sslmode=disable", pg.ConnectionInfo())
	pg.Password = "pw"
	assert.Contains(t, pg.ConnectionInfo(), "password=pw")

	my := DatabaseConfig{Dialect: database.MySQL, Host: "db", Port: 3306, User: "root", Password: "pw", Name: "gram"}
	assert.Equal(t, "root:pw@tcp(db:3306)/gram?charset=utf8mb4&parseTime=True&loc=UTC", my.ConnectionInfo())

	lite := DatabaseConfig{Dialect: database.SQLite, Name: "gram.db"}
	assert.Equal(t, "gram.db", lite.ConnectionInfo())

	lite.DSN = "file::memory:"
	assert.Equal(t, "file::memory:", lite.ConnectionInfo())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_DIALECT", "sqlite")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	c := DefaultConfig()
	require.NoError(t, applyEnv(&c))
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, database.SQLite, c.Database.Dialect)
	assert.Equal(t, "from-env", c.JWTSecret)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, "secret-random-string", c.Pepper)

	t.Setenv("PORT", "eighty")
	assert.Error(t, applyEnv(&c))
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9000, "env": "prod", "database": {"dialect": "mysql"}}`), 0o600))

	c, err := readConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, c.Port)
	assert.True(t, c.IsProd())
	assert.Equal(t, database.MySQL, c.Database.Dialect)
	// Fields the file leaves out keep their defaults.
	assert.Equal(t, "localhost", c.Database.Host)

	_, err = readConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDestructiveReset(t *testing.T) {
	db := NewDB(database.SQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, Open(db, false))
	defer Close(db)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Gorm.Create(&domain.User{ID: uuid.NewString(), Handle: "alice", Email: "a@example.com", PasswordHash: "x"}).Error)
	require.NoError(t, DestructiveReset(db))

	var count int64
	require.NoError(t, db.Gorm.Model(&domain.User{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.Error(t, Open(NewDB(database.SQLite, ""), false))
}
