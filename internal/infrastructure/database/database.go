package database

import (
	"fmt"

	"corkboard-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// OpenSQLite opens a SQLite database for local runs. An empty dsn opens a
// private in-memory database held on a single connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenDriver picks the driver by name ("postgres" or "sqlite").
func OpenDriver(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", "postgres":
		return Open(dsn)
	case "sqlite":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// AutoMigrate runs migrations for every stored model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Org{},
		&domain.User{},
		&domain.TemplateRow{},
		&domain.Client{},
		&domain.ClientRecord{},
		&domain.ClientFieldOverride{},
		&domain.Note{},
		&domain.Script{},
	)
}
