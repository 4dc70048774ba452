package models

// User is the read-only view of a storefront account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Product is the read-only view of a catalog item used in email layouts.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
	Price    float64 `json:"price,omitempty"`
}
