package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePrefix selects the embedded SQLite store, e.g. DATABASE_URI=sqlite:data/incentive.db.
// Used for local runs and tests; production runs on MySQL.
const sqlitePrefix = "sqlite:"

var db *gorm.DB

// InitDatabase opens the configured database and migrates the given models. Any failure is
// fatal at boot.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}
	conn, err := Open(Get())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := Migrate(conn, modelDefs...); err != nil {
		log.Fatalf("database: %v", err)
	}
	db = conn
	return db
}

// mysqlDSN builds the connection string from the DB fields. Dates are decoded in the
// incentive timezone so DATE columns match the calendar the jobs scan by.
func mysqlDSN(cfg AppConfig) string {
	loc := cfg.Incentive.Timezone
	if loc == "" {
		loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, url.QueryEscape(loc))
}

// Open connects to MySQL, or to SQLite when DatabaseURI starts with "sqlite:", and pings it
// so network and credential problems surface before the first query.
func Open(cfg AppConfig) (*gorm.DB, error) {
	uri := cfg.DatabaseURI
	if path, ok := strings.CutPrefix(uri, sqlitePrefix); ok {
		conn, err := gorm.Open(sqlite.Open(path), GormConfig(cfg.LogLevel))
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// one writer: SQLite has no row locks, the single connection serializes transactions
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	}

	if uri == "" {
		uri = mysqlDSN(cfg)
	}
	conn, err := gorm.Open(mysql.Open(uri), GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return conn, nil
}

// Migrate creates missing tables, columns and indexes; it never drops anything.
func Migrate(conn *gorm.DB, modelDefs ...interface{}) error {
	var errs []error
	for _, model := range modelDefs {
		if err := conn.AutoMigrate(model); err != nil {
			errs = append(errs, fmt.Errorf("migrate %T: %w", model, err))
		}
	}
	return errors.Join(errs...)
}

// GormConfig is shared by every dialect. TranslateError maps unique-key violations to
// gorm.ErrDuplicatedKey, which the engine turns into conflict errors.
func GormConfig(logLevel string) *gorm.Config {
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
