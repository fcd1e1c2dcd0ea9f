package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reena96/picstormai-sub001/pkg/config"
	"github.com/reena96/picstormai-sub001/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
}

// NewDatabase creates a new PostgreSQL connection
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return OpenDatabase(postgres.Open(cfg.DatabaseURL()))
}

// OpenDatabase opens any gorm dialector with the service's logger attached
func OpenDatabase(dialector gorm.Dialector) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: zerologGormLogger{level: logger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Migrate creates or updates the tables the service owns
func (db *Database) Migrate() error {
	return db.AutoMigrate(
		&types.User{},
		&types.APIKey{},
		&types.Photo{},
	)
}

// Ping checks the underlying connection
func (db *Database) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zerologGormLogger routes gorm's logging through the global zerolog logger
type zerologGormLogger struct {
	level logger.LogLevel
}

func (l zerologGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return zerologGormLogger{level: level}
}

func (l zerologGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		log.Info().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		log.Warn().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		log.Error().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	var event *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		event = log.Error().Err(err)
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		event = log.Warn().Bool("slow", true)
	case l.level >= logger.Info:
		event = log.Debug()
	default:
		return
	}

	sql, rows := fc()
	event.Str("component", "gorm").
		Dur("elapsed", elapsed).
		Int64("rows", rows).
		Str("sql", sql).
		Msg("Database query")
}
