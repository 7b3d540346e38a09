// Package dbtest opens isolated in-memory SQLite databases carrying the
// beatstore schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'buyer',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE beats (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		genre TEXT NOT NULL,
		bpm INTEGER NOT NULL,
		scale TEXT NOT NULL,
		cover_art_key TEXT,
		snippet_key TEXT,
		price NUMERIC NOT NULL,
		mp3_file_key TEXT,
		wav_file_key TEXT,
		stems_file_key TEXT,
		mp3_price NUMERIC,
		wav_price NUMERIC,
		stems_price NUMERIC,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		beat_id TEXT NOT NULL REFERENCES beats(id) ON DELETE CASCADE,
		download_type TEXT NOT NULL,
		price_paid NUMERIC NOT NULL,
		payment_method TEXT NOT NULL DEFAULT 'stripe',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		stripe_payment_intent_id TEXT,
		stripe_session_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT uq_purchases_user_beat_download_type UNIQUE (user_id, beat_id, download_type)
	)`,
	`CREATE INDEX idx_purchases_intent ON purchases (stripe_payment_intent_id)`,
	`CREATE TABLE stripe_webhook_events (
		id TEXT PRIMARY KEY,
		stripe_event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT 0,
		processed_at DATETIME,
		last_error TEXT,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME
	)`,
}

// Open returns a fresh database isolated from every other test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// Shared-cache memory databases report SQLITE_LOCKED under concurrent writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
