package model

type User struct {
	DTO
	Email     string  `gorm:"unique;not null" json:"email"`
	Phone     string  `json:"phone"`
	Password  string  `gorm:"not null" json:"-"`
	UserName  string  `json:"username"`
	FirstName *string `json:"firstname"`
	LastName  *string `json:"lastname"`
	Role      string  `gorm:"size:16;default:CUSTOMER" json:"role"`
	IsActive  bool    `gorm:"default:true" json:"isActive"`
}
