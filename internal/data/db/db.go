package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	DSN    string

	MaxOpenConns int
	MaxIdleConns int
	SlowQuery    time.Duration
}

// Open connects with the configured driver. sqlite is meant for local runs
// and tests; it is limited to one connection so writers serialize.
func Open(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	serviceLog := log.With("service", "db")

	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := gormLogger.New(
		stdWriter(),
		gormLogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "postgres", "postgresql":
		driver = "postgres"
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "sqlite", "sqlite3":
		driver = "sqlite"
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "file::memory:?_busy_timeout=5000"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	serviceLog.Info("database connected", "driver", driver)
	return db, nil
}

func stdWriter() gormLogger.Writer {
	return log.New(os.Stdout, "\r\n", log.LstdFlags)
}
