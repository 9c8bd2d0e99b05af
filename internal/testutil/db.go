// Package testutil provides an isolated in-memory database and fixtures for
// package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"putscreener/internal/config"
	"putscreener/internal/db"
	"putscreener/internal/models"
	gormrepository "putscreener/internal/repository/gorm"
)

var dbSeq atomic.Int64

// SetupTestDB opens a private in-memory sqlite database with every model
// migrated. It is closed when the test ends.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

// SetupStore returns a gorm store over a fresh test database.
func SetupStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	return gormrepository.New(SetupTestDB(t).Gorm)
}

// CreateTicker inserts a ticker fixture and fails the test on error.
func CreateTicker(t *testing.T, conn *db.DB, item models.Ticker) models.Ticker {
	t.Helper()
	if item.Name == "" {
		item.Name = item.Symbol
	}
	if err := conn.Gorm.Omit("Sector", "Industry").Create(&item).Error; err != nil {
		t.Fatalf("create ticker %s: %v", item.Symbol, err)
	}
	return item
}

// Date builds a UTC calendar date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dec is decimal.NewFromFloat returning a pointer, for bar fixtures.
func Dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// SeedBars writes n consecutive daily bars ending at end, each with the same
// OHLC shape offset by the bar index.
func SeedBars(t *testing.T, conn *db.DB, tickerID uint64, end time.Time, n int, bar func(i int) models.TickerPrice) {
	t.Helper()
	items := make([]models.TickerPrice, 0, n)
	start := models.Day(end).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		p := bar(i)
		p.TickerID = tickerID
		p.Date = start.AddDate(0, 0, i)
		items = append(items, p)
	}
	if err := conn.Gorm.CreateInBatches(&items, 200).Error; err != nil {
		t.Fatalf("seed bars: %v", err)
	}
}
