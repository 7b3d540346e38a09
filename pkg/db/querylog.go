package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

func gormConfig(logg *logger.Logger, slow time.Duration) *gorm.Config {
	cfg := &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
	}
	if logg != nil {
		cfg.Logger = &queryLogger{logg: logg, slow: slow}
	}
	return cfg
}

// queryLogger sends gorm's statement trace to the service logger. Slow
// statements are warnings; failed statements are debug lines because the
// caller decides whether the error matters (unique violations are expected
// on duplicate webhooks).
type queryLogger struct {
	logg   *logger.Logger
	slow   time.Duration
	silent bool
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.silent = level == gormlogger.Silent
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if !q.silent {
		q.logg.Debug(ctx, "gorm: "+fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if !q.silent {
		q.logg.Warn(ctx, "gorm: "+fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if !q.silent {
		q.logg.Error(ctx, "gorm: "+fmt.Sprintf(msg, args...), nil)
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.silent {
		return
	}
	elapsed := time.Since(begin)
	isSlow := q.slow > 0 && elapsed > q.slow
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if !isSlow && !failed {
		return
	}
	stmt, rows := fc()
	fields := map[string]any{
		"sql":        stmt,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if failed {
		fields["db_error"] = err.Error()
	}
	logCtx := q.logg.WithFields(ctx, fields)
	if isSlow {
		q.logg.Warn(logCtx, "db.query.slow")
		return
	}
	q.logg.Debug(logCtx, "db.query.failed")
}
