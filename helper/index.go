package helper

import (
	"errors"
	"fmt"

	"marketplace/config"
	"marketplace/model"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoUser = errors.New("no authenticated user")

func jwtSecret() []byte {
	return []byte(config.Config("JWT_SECRET"))
}

func ParseToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret(), nil
	})
}

// GetUserFromToken reads the claims stored by middleware.Protected.
func GetUserFromToken(c *fiber.Ctx) (model.TokenClaim, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return model.TokenClaim{}, ErrNoUser
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.TokenClaim{}, ErrNoUser
	}
	userID, _ := claims["userId"].(float64)
	if userID <= 0 {
		return model.TokenClaim{}, ErrNoUser
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	return model.TokenClaim{UserId: uint(userID), Username: username, Role: role}, nil
}
