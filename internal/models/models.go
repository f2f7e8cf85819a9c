package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// CartLineItem is one cart position. ProductID+VariantSKU is the uniqueness
// key; the remaining fields are display snapshots taken when the item was
// added and are never re-priced client-side.
type CartLineItem struct {
	ProductID  uint    `json:"product_id"`
	VariantSKU string  `json:"variant_sku"`
	Quantity   uint    `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Name       string  `json:"name"`
	Image      string  `json:"image"`
	Size       string  `json:"size"`
	Color      string  `json:"color"`
}

func (i CartLineItem) SameVariant(other CartLineItem) bool {
	return i.ProductID == other.ProductID && i.VariantSKU == other.VariantSKU
}

// Subtotal and BadgeCount are always computed from the items, never stored.
func Subtotal(items []CartLineItem) float64 {
	var total float64
	for _, it := range items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

func BadgeCount(items []CartLineItem) uint {
	var n uint
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

type Product struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       uint    `json:"count"`
	Image       string  `json:"image"`
}
