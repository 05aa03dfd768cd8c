package cart

import "time"

// GrowingDetails tracks a booked, still-growing product. Only meaningful when
// the owning item has IsBooking set.
type GrowingDetails struct {
	Progress        int       `json:"progress"`
	ExpectedReadyAt time.Time `json:"expectedReadyAt"`
}

type Item struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	// Price is snapshotted at add time; later product price changes do not
	// alter existing cart lines.
	Price     float64         `json:"price"`
	Quantity  int             `json:"quantity"`
	IsBooking bool            `json:"isBooking"`
	Growing   *GrowingDetails `json:"growingDetails,omitempty"`
}

// Product is the subset of a catalog entry needed to add a cart line.
type Product struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// Count sums quantities. Nil slices and non-positive quantities contribute
// zero; the view must never fail on malformed data.
func Count(items []Item) int {
	total := 0
	for _, it := range items {
		if it.Quantity > 0 {
			total += it.Quantity
		}
	}
	return total
}

// Total sums price*quantity, treating missing price or quantity as zero so a
// partially malformed line degrades the total instead of breaking the view.
func Total(items []Item) float64 {
	total := 0.0
	for _, it := range items {
		if it.Price <= 0 || it.Quantity <= 0 {
			continue
		}
		total += it.Price * float64(it.Quantity)
	}
	return total
}
