package models

// Product is a catalog entry as seen by this service. Quantity is the
// on-hand counter mutated through the catalog's decrement/restore
// operations; the catalog owns everything else about the product.
type Product struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// User is a directory entry resolved through the user service.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
