// Package bloomsokotest is an in-memory fake of the Bloomsoko REST backend.
// It implements the full contract the client consumes (cart, orders, payment
// verification) and exposes switches for injecting failures, so transport
// and reconciliation behavior can be tested end to end without a real
// backend.
package bloomsokotest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type CartItem struct {
	ItemID    string  `json:"itemId"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	IsBooking bool    `json:"isBooking"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID          string      `json:"_id"`
	OrderNumber string      `json:"orderNumber"`
	Status      string      `json:"status"`
	TotalAmount float64     `json:"totalAmount"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Payment struct {
	OrderNumber string
	Total       float64
	Recipient   string
}

// Server holds backend state keyed the way the real one is: carts by
// anonymous identity, orders and payments by bearer token.
type Server struct {
	mu sync.Mutex

	httpServer *httptest.Server

	carts    map[string][]CartItem
	nextLine int
	prices   map[string]float64

	orders   map[string][]Order
	payments map[string]Payment // reference → payment

	// FailNext, keyed by route name ("fetch", "add", "remove", "update",
	// "clear", "verify", "list"), makes the next matching call return 503.
	failNext map[string]bool

	verifyCalls int
}

func NewServer() *Server {
	s := &Server{
		carts:    make(map[string][]CartItem),
		prices:   make(map[string]float64),
		orders:   make(map[string][]Order),
		payments: make(map[string]Payment),
		failNext: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.handleFetchCart)
		r.Post("/add", s.handleAddItem)
		r.Delete("/remove/{itemId}", s.handleRemoveItem)
		r.Put("/update/{itemId}", s.handleUpdateQuantity)
		r.Delete("/clear", s.handleClearCart)
	})
	r.Get("/paystack/verify/{reference}", s.handleVerifyPayment)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/user", s.handleListOrders)
		r.Get("/{id}", s.handleGetOrder)
		r.Put("/{id}/cancel", s.handleCancelOrder)
	})

	s.httpServer = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// SetPrice registers a catalog price snapshotted into cart lines at add time.
func (s *Server) SetPrice(productID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[productID] = price
}

// SeedOrders installs the order list returned for a token.
func (s *Server) SeedOrders(token string, orders []Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[token] = orders
}

// SeedPayment registers a verifiable payment reference for a token.
func (s *Server) SeedPayment(reference string, p Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[reference] = p
}

// FailNext arms a one-shot 503 for the named route.
func (s *Server) FailNext(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = true
}

// Cart returns the server-side cart for an identity.
func (s *Server) Cart(identity string) []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CartItem, len(s.carts[identity]))
	copy(out, s.carts[identity])
	return out
}

// VerifyCalls reports how many verification requests reached the server.
func (s *Server) VerifyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls
}

func (s *Server) consumeFailure(route string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext[route] {
		s.failNext[route] = false
		return true
	}
	return false
}

func identityOf(r *http.Request) string {
	return r.Header.Get("X-Anonymous-Id")
}

func tokenOf(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func (s *Server) handleFetchCart(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("fetch") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	id := identityOf(r)
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing_identity", "anonymous identity required")
		return
	}
	s.mu.Lock()
	items := make([]CartItem, len(s.carts[id]))
	copy(items, s.carts[id])
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("add") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	id := identityOf(r)
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		IsBooking bool   `json:"isBooking"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	s.nextLine++
	s.carts[id] = append(s.carts[id], CartItem{
		ItemID:    fmt.Sprintf("line-%d", s.nextLine),
		ProductID: req.ProductID,
		Price:     s.prices[req.ProductID],
		Quantity:  req.Quantity,
		IsBooking: req.IsBooking,
	})
	items := s.carts[id]
	s.mu.Unlock()

	respondJSON(w, http.StatusCreated, map[string]any{"items": items})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("remove") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	id := identityOf(r)
	itemID := chi.URLParam(r, "itemId")

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[id]
	for i, it := range items {
		if it.ItemID == itemID {
			s.carts[id] = append(items[:i], items[i+1:]...)
			respondJSON(w, http.StatusOK, map[string]any{"items": s.carts[id]})
			return
		}
	}
	respondError(w, http.StatusNotFound, "not_found", "cart item not found")
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("update") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	id := identityOf(r)
	itemID := chi.URLParam(r, "itemId")
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[id]
	for i := range items {
		if items[i].ItemID == itemID {
			items[i].Quantity = req.Quantity
			respondJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		}
	}
	respondError(w, http.StatusNotFound, "not_found", "cart item not found")
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("clear") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	id := identityOf(r)
	s.mu.Lock()
	delete(s.carts, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.verifyCalls++
	s.mu.Unlock()

	if s.consumeFailure("verify") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	if tokenOf(r) == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
		return
	}

	ref := chi.URLParam(r, "reference")
	s.mu.Lock()
	p, ok := s.payments[ref]
	s.mu.Unlock()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"order": map[string]any{
				"orderNumber": p.OrderNumber,
				"totalAmount": p.Total,
				"recipient":   p.Recipient,
			},
		},
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if s.consumeFailure("list") {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	token := tokenOf(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
		return
	}
	s.mu.Lock()
	orders := make([]Order, len(s.orders[token]))
	copy(orders, s.orders[token])
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"data": orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	token := tokenOf(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders[token] {
		if o.ID == id {
			respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": o})
			return
		}
	}
	respondError(w, http.StatusNotFound, "not_found", "order not found")
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	token := tokenOf(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders[token] {
		if s.orders[token][i].ID == id {
			s.orders[token][i].Status = "cancelled"
			respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "order cancelled"})
			return
		}
	}
	respondError(w, http.StatusNotFound, "not_found", "order not found")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}
