package devserver

import (
	"time"

	"shopfront/internal/models"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:user"    json:"role"`
	Status       string `gorm:"not null;default:active"  json:"status"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

func (u *User) toAPI() models.User {
	return models.User{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"      json:"id"`
	Token     string    `gorm:"unique;not null" json:"token"`
	UserID    uint      `gorm:"index;not null"  json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"        json:"expires_at"`
	Revoked   bool      `gorm:"default:false"   json:"revoked"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string  `gorm:"not null"                 json:"name"`
	Description string  `json:"description"`
	Price       float64 `gorm:"not null"                 json:"price"`
	Count       uint    `json:"count"`
	Image       string  `json:"image"`
}

// CartEntry is one server-cart position. Insertion order (the primary key)
// defines the positional indices the contract exposes.
type CartEntry struct {
	ID         uint    `gorm:"primaryKey"                              json:"id"`
	UserID     uint    `gorm:"uniqueIndex:idx_user_variant;not null"   json:"user_id"`
	ProductID  uint    `gorm:"uniqueIndex:idx_user_variant;not null"   json:"product_id"`
	VariantSKU string  `gorm:"uniqueIndex:idx_user_variant"            json:"variant_sku"`
	Quantity   uint    `gorm:"default:1;check:quantity>0"              json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Name       string  `json:"name"`
	Image      string  `json:"image"`
	Size       string  `json:"size"`
	Color      string  `json:"color"`
}

func (e *CartEntry) toLine() models.CartLineItem {
	return models.CartLineItem{
		ProductID:  e.ProductID,
		VariantSKU: e.VariantSKU,
		Quantity:   e.Quantity,
		UnitPrice:  e.UnitPrice,
		Name:       e.Name,
		Image:      e.Image,
		Size:       e.Size,
		Color:      e.Color,
	}
}
