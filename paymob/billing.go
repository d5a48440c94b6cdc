package paymob

import (
	"fmt"

	"marketplace/model"

	"github.com/jinzhu/copier"
)

const (
	placeholder      = "NA"
	placeholderEmail = "customer@example.com"
	placeholderPhone = "+201000000000"
	defaultCountry   = "EG"
)

// BillingData is the billing block of a payment key request. The gateway rejects
// requests with any of these fields blank.
type BillingData struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number"`
	Apartment      string `json:"apartment"`
	Floor          string `json:"floor"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	ShippingMethod string `json:"shipping_method"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	Country        string `json:"country"`
	State          string `json:"state"`
}

// BuildBillingData fills the billing block from the order and its buyer, substituting
// fixed placeholders for anything missing.
func BuildBillingData(order model.Order) (BillingData, error) {
	var billing BillingData
	// City, State, PostalCode and Country share names with the order.
	if err := copier.Copy(&billing, &order); err != nil {
		return BillingData{}, fmt.Errorf("paymob: billing data for order %d: %w", order.ID, err)
	}
	billing.Street = order.ShippingAddress
	billing.PhoneNumber = order.Phone

	if u := order.User; u != nil {
		billing.Email = u.Email
		if u.FirstName != nil {
			billing.FirstName = *u.FirstName
		}
		if u.LastName != nil {
			billing.LastName = *u.LastName
		}
		if billing.PhoneNumber == "" {
			billing.PhoneNumber = u.Phone
		}
	}

	fallback(&billing.Email, placeholderEmail)
	fallback(&billing.PhoneNumber, placeholderPhone)
	fallback(&billing.Country, defaultCountry)
	for _, f := range []*string{
		&billing.FirstName, &billing.LastName, &billing.Apartment, &billing.Floor,
		&billing.Street, &billing.Building, &billing.ShippingMethod,
		&billing.PostalCode, &billing.City, &billing.State,
	} {
		fallback(f, placeholder)
	}
	return billing, nil
}

func fallback(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
