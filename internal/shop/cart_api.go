package shop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================
// Cart Operations
// ============================================

// FetchCart retrieves the current cart. Network failures are retried.
func (c *Client) FetchCart(ctx context.Context) (*Cart, error) {
	var cart *Cart
	err := c.retryRead(ctx, "cart.fetch", func() error {
		got, err := c.fetchCartOnce(ctx)
		cart = got
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (c *Client) fetchCartOnce(ctx context.Context) (*Cart, error) {
	const op = "cart.fetch"
	var cart Cart
	if err := c.doRequest(ctx, op, http.MethodGet, "/cart.js", nil, nil, &cart); err != nil {
		return nil, err
	}
	if cart.Items == nil {
		return nil, decodeError(op, errors.New("response has no items"))
	}
	return &cart, nil
}

// AddVariant adds quantity units of a variant. The add endpoint answers with
// the added lines only, so the authoritative cart is read afterwards. When
// only that read fails the error is marked Applied.
func (c *Client) AddVariant(ctx context.Context, variantID int64, quantity int) (*Cart, error) {
	const op = "cart.add"
	if quantity <= 0 {
		return nil, NewValidationError(op, fmt.Sprintf("quantity must be positive, got %d", quantity))
	}
	if variantID <= 0 {
		return nil, NewValidationError(op, fmt.Sprintf("invalid variant id %d", variantID))
	}

	req := addRequest{Items: []addItem{{ID: variantID, Quantity: quantity}}}
	if err := c.doRequest(ctx, op, http.MethodPost, "/cart/add.js", nil, req, nil); err != nil {
		return nil, classify(err, mutationRules)
	}

	cart, err := c.FetchCart(ctx)
	if err != nil {
		return nil, &Error{
			Kind:    KindOf(err),
			Op:      op,
			Message: "added, but reading the cart back failed",
			Err:     err,
			Applied: true,
		}
	}
	return cart, nil
}

// SetLineQuantity sets the quantity of a line. Zero removes the line.
func (c *Client) SetLineQuantity(ctx context.Context, key string, quantity int) (*Cart, error) {
	const op = "cart.change"
	if key == "" {
		return nil, NewValidationError(op, "line key is empty")
	}
	if quantity < 0 {
		return nil, NewValidationError(op, fmt.Sprintf("quantity must not be negative, got %d", quantity))
	}

	var cart Cart
	req := changeRequest{ID: key, Quantity: quantity}
	if err := c.doRequest(ctx, op, http.MethodPost, "/cart/change.js", nil, req, &cart); err != nil {
		return nil, classify(err, mutationRules)
	}
	if cart.Items == nil {
		return nil, decodeError(op, errors.New("response has no items"))
	}
	return &cart, nil
}

// SetNote stores the cart note.
func (c *Client) SetNote(ctx context.Context, note string) error {
	const op = "cart.update"
	req := updateRequest{Note: note}
	return c.doRequest(ctx, op, http.MethodPost, "/cart/update.js", nil, req, nil)
}

// ClearCart removes every line from the cart.
func (c *Client) ClearCart(ctx context.Context) (*Cart, error) {
	const op = "cart.clear"
	var cart Cart
	if err := c.doRequest(ctx, op, http.MethodPost, "/cart/clear.js", nil, nil, &cart); err != nil {
		return nil, err
	}
	if cart.Items == nil {
		return nil, decodeError(op, errors.New("response has no items"))
	}
	return &cart, nil
}

// mutationRules maps platform rejections of add/change calls to error kinds.
func mutationRules(status int, payload *platformError) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest && payload != nil && mentionsMissingLine(payload):
		return KindNotFound
	case status == http.StatusUnprocessableEntity && payload != nil:
		return KindOutOfStock
	}
	return KindNetwork
}

func mentionsMissingLine(p *platformError) bool {
	text := strings.ToLower(p.Message + " " + p.Description)
	return strings.Contains(text, "no valid id") || strings.Contains(text, "line parameter")
}
