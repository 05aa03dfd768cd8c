package bloomsoko

import (
	"context"
	"net/http"
	"net/url"

	"github.com/lenox-isindu/bloomsoko-go/cart"
	"github.com/lenox-isindu/bloomsoko-go/internal/rest"
	"github.com/lenox-isindu/bloomsoko-go/orders"
	"github.com/lenox-isindu/bloomsoko-go/payment"
)

// apiClient binds the generic transport to the backend's routes and response
// envelopes. It satisfies cart.API, orders.API, and payment.API.
type apiClient struct {
	rest *rest.Client
}

func (c *apiClient) FetchCart(ctx context.Context, identity string) ([]cart.Item, error) {
	var out struct {
		Items []cart.Item `json:"items"`
	}
	if err := c.rest.Do(ctx, http.MethodGet, "/cart", nil, &out, rest.WithIdentity(identity)); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *apiClient) AddItem(ctx context.Context, identity, productID string, quantity int, isBooking bool) error {
	body := map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"isBooking": isBooking,
	}
	// The add response is a cart-ish payload, but the store refetches anyway;
	// decoding it here would just duplicate the source of truth.
	return c.rest.Do(ctx, http.MethodPost, "/cart/add", body, nil, rest.WithIdentity(identity))
}

func (c *apiClient) RemoveItem(ctx context.Context, identity, itemID string) error {
	return c.rest.Do(ctx, http.MethodDelete, "/cart/remove/"+url.PathEscape(itemID), nil, nil,
		rest.WithIdentity(identity))
}

func (c *apiClient) UpdateQuantity(ctx context.Context, identity, itemID string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	return c.rest.Do(ctx, http.MethodPut, "/cart/update/"+url.PathEscape(itemID), body, nil,
		rest.WithIdentity(identity))
}

func (c *apiClient) ClearCart(ctx context.Context, identity string) error {
	return c.rest.Do(ctx, http.MethodDelete, "/cart/clear", nil, nil, rest.WithIdentity(identity))
}

func (c *apiClient) VerifyPayment(ctx context.Context, token, reference string) (payment.Result, error) {
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			Order struct {
				OrderNumber string  `json:"orderNumber"`
				TotalAmount float64 `json:"totalAmount"`
				Recipient   string  `json:"recipient"`
			} `json:"order"`
		} `json:"data"`
	}
	err := c.rest.Do(ctx, http.MethodGet, "/paystack/verify/"+url.PathEscape(reference), nil, &out,
		rest.WithBearer(token))
	if err != nil {
		return payment.Result{}, err
	}
	if !out.Success {
		return payment.Result{}, payment.ErrNotConfirmed
	}
	return payment.Result{
		OrderNumber:    out.Data.Order.OrderNumber,
		Total:          out.Data.Order.TotalAmount,
		RecipientEmail: out.Data.Order.Recipient,
	}, nil
}

func (c *apiClient) ListOrders(ctx context.Context, token string) ([]orders.Order, error) {
	var out struct {
		Data []orders.Order `json:"data"`
	}
	if err := c.rest.Do(ctx, http.MethodGet, "/orders/user", nil, &out, rest.WithBearer(token)); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *apiClient) GetOrder(ctx context.Context, token, id string) (orders.Order, error) {
	var out struct {
		Success bool         `json:"success"`
		Data    orders.Order `json:"data"`
	}
	if err := c.rest.Do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out, rest.WithBearer(token)); err != nil {
		return orders.Order{}, err
	}
	return out.Data, nil
}

func (c *apiClient) CancelOrder(ctx context.Context, token, id string) error {
	return c.rest.Do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/cancel", nil, nil,
		rest.WithBearer(token))
}

var (
	_ cart.API    = (*apiClient)(nil)
	_ orders.API  = (*apiClient)(nil)
	_ payment.API = (*apiClient)(nil)
)
