package database

import (
	"log"

	"marketplace/constants"
	"marketplace/model"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedData creates a demo buyer with order #42 (total 100.00) for local runs.
func SeedData(db *gorm.DB) {
	bytes, err := bcrypt.GenerateFromPassword([]byte("123456mk"), 10)
	if err != nil {
		log.Println("failed to hash seed password:", err)
		return
	}
	first, last := "Demo", "Buyer"
	user := model.User{
		Email:     "buyer@example.com",
		Phone:     "+201000000001",
		Password:  string(bytes),
		UserName:  "demo-buyer",
		FirstName: &first,
		LastName:  &last,
		Role:      constants.ROLE_CUSTOMER,
		IsActive:  true,
	}
	if err := db.Where(model.User{Email: user.Email}).FirstOrCreate(&user).Error; err != nil {
		log.Println("failed to seed user:", user.Email, "error:", err)
		return
	}

	order := model.Order{
		DTO:           model.DTO{ID: 42},
		UserID:        user.ID,
		PaymentStatus: model.OrderPending,
		City:          "Cairo",
		Country:       "EG",
		Items: []model.OrderItem{
			{Title: "Landing page template", Price: decimal.RequireFromString("60.00"), Quantity: 1},
			{Title: "Icon pack", Price: decimal.RequireFromString("20.00"), Quantity: 2},
		},
	}
	if err := db.Where(model.Order{DTO: model.DTO{ID: 42}}).FirstOrCreate(&order).Error; err != nil {
		log.Println("failed to seed order 42 error:", err)
	}
}
