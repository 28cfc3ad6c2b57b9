package shop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ============================================
// Catalog Operations
// ============================================

// GetProduct fetches a product by handle.
func (c *Client) GetProduct(ctx context.Context, handle string) (*Product, error) {
	const op = "product.get"
	if handle == "" {
		return nil, NewValidationError(op, "handle is empty")
	}
	endpoint := fmt.Sprintf("/products/%s.js", url.PathEscape(handle))

	var product Product
	err := c.retryRead(ctx, op, func() error {
		err := c.doRequest(ctx, op, http.MethodGet, endpoint, nil, nil, &product)
		return classify(err, readRules)
	})
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, decodeError(op, errors.New("response has no product id"))
	}
	return &product, nil
}

// GetCollectionProducts lists up to limit products of a collection.
func (c *Client) GetCollectionProducts(ctx context.Context, handle string, limit int) ([]CollectionProduct, error) {
	const op = "collection.products"
	if handle == "" {
		return nil, NewValidationError(op, "handle is empty")
	}
	endpoint := fmt.Sprintf("/collections/%s/products.json", url.PathEscape(handle))

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp collectionResponse
	err := c.retryRead(ctx, op, func() error {
		err := c.doRequest(ctx, op, http.MethodGet, endpoint, query, nil, &resp)
		return classify(err, readRules)
	})
	if err != nil {
		return nil, err
	}
	if resp.Products == nil {
		return []CollectionProduct{}, nil
	}
	return resp.Products, nil
}

// readRules reports unknown handles as not found instead of retrying them.
func readRules(status int, _ *platformError) ErrorKind {
	if status == http.StatusNotFound {
		return KindNotFound
	}
	return KindNetwork
}
