package main

import (
	"gorm.io/gorm"

	"wtfGram/database"
)

// DB provides the database connection.
type DB struct {
	// Object-relational mapping.
	Gorm *gorm.DB
	// Dialect is one of database.Postgres, database.MySQL or database.SQLite.
	Dialect string
	// Connection info string containing database name, user, port etc.
	ConnectionInfo string
}

// NewDB returns a new instance of DB.
func NewDB(dialect, connectionInfo string) *DB {
	return &DB{
		Dialect:        dialect,
		ConnectionInfo: connectionInfo,
	}
}

// Open opens a new database connection. It also configures logging
// based on whether we're in development or in production.
func Open(db *DB, isProd bool) (err error) {
	db.Gorm, err = database.Open(db.Dialect, db.ConnectionInfo, isProd)
	return err
}

// AutoMigrate runs database migrations for all tables.
func AutoMigrate(db *DB) error {
	return database.AutoMigrate(db.Gorm)
}

// DestructiveReset drops all tables and rebuilds them.
func DestructiveReset(db *DB) error {
	if err := db.Gorm.Migrator().DropTable(database.Models()...); err != nil {
		return err
	}
	return AutoMigrate(db)
}

// Close closes the database connection.
func Close(db *DB) error {
	sqlDb, err := db.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
