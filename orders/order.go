package orders

import (
	"sort"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

type Item struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID          string    `json:"_id"`
	OrderNumber string    `json:"orderNumber"`
	Status      Status    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Dedupe collapses rows sharing an order number down to the most recently
// created one. The backend can return several rows for the same business
// order (a creation retried before payment); the newest row is authoritative.
func Dedupe(list []Order) []Order {
	sorted := make([]Order, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]Order, 0, len(sorted))
	for _, o := range sorted {
		if seen[o.OrderNumber] {
			continue
		}
		seen[o.OrderNumber] = true
		out = append(out, o)
	}
	return out
}

// FilterStale hides pending orders older than the window; they should have
// transitioned long ago and are presumed abandoned. Terminal orders are kept
// regardless of age. Display-only: nothing is deleted server-side.
func FilterStale(list []Order, window time.Duration, now time.Time) []Order {
	out := make([]Order, 0, len(list))
	for _, o := range list {
		if o.Status == StatusPending && now.Sub(o.CreatedAt) > window {
			continue
		}
		out = append(out, o)
	}
	return out
}

func anyPending(list []Order) bool {
	for _, o := range list {
		if !o.Status.IsTerminal() {
			return true
		}
	}
	return false
}
