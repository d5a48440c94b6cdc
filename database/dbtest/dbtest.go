// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"marketplace/database"
	"marketplace/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database private to t. The pool is
// limited to one connection so SQLite never reports the database as locked.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedOrder inserts a buyer and an order with a single line item worth totalCents.
func SeedOrder(t testing.TB, db *gorm.DB, orderID uint, totalCents int64) model.Order {
	t.Helper()
	first, last := "Mona", "Adel"
	user := model.User{
		Email:     fmt.Sprintf("buyer-%d@example.com", orderID),
		Password:  "x",
		FirstName: &first,
		LastName:  &last,
		IsActive:  true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	order := model.Order{
		DTO:           model.DTO{ID: orderID},
		UserID:        user.ID,
		PaymentStatus: model.OrderPending,
		City:          "Cairo",
		Items: []model.OrderItem{{
			Title:    "Template",
			Price:    decimal.NewFromInt(totalCents).Shift(-2),
			Quantity: 1,
		}},
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	order.User = &user
	return order
}
