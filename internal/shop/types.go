// Package shop provides a client for the storefront cart and catalog JSON endpoints.
package shop

import (
	"github.com/shopspring/decimal"
)

// ============================================
// Cart Types
// Based on /cart.js
// ============================================

// Cart is the server-authoritative cart.
type Cart struct {
	Token      string     `json:"token"`
	Note       string     `json:"note"`
	TotalPrice int64      `json:"total_price"` // minor units
	Currency   string     `json:"currency"`
	ItemCount  int        `json:"item_count"`
	Items      []LineItem `json:"items"`
}

// LineItem is one entry of a cart. Key is opaque and unique within the cart.
type LineItem struct {
	Key          string `json:"key"`
	VariantID    int64  `json:"variant_id"`
	ProductID    int64  `json:"product_id"`
	Title        string `json:"title"`
	ProductTitle string `json:"product_title"`
	VariantTitle string `json:"variant_title"`
	Handle       string `json:"handle"`
	UnitPrice    int64  `json:"final_price"`
	LinePrice    int64  `json:"final_line_price"`
	Quantity     int    `json:"quantity"`
	ImageURL     string `json:"image"`
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	out := c
	if c.Items != nil {
		out.Items = make([]LineItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return out
}

// Line returns the index of the line with the given key, or -1.
func (c *Cart) Line(key string) int {
	for i := range c.Items {
		if c.Items[i].Key == key {
			return i
		}
	}
	return -1
}

// LineForVariant returns the index of the first line holding variantID, or -1.
func (c *Cart) LineForVariant(variantID int64) int {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// Quantity returns the total quantity across all lines.
func (c *Cart) Quantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty returns true if the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// DisplayTitle returns the best title for the line.
func (it *LineItem) DisplayTitle() string {
	if it.ProductTitle != "" {
		if it.VariantTitle != "" && it.VariantTitle != "Default Title" {
			return it.ProductTitle + " (" + it.VariantTitle + ")"
		}
		return it.ProductTitle
	}
	return it.Title
}

// ============================================
// Product Types
// Based on /products/<handle>.js
// ============================================

// Product is a product as served by the product JSON endpoint. Prices are minor units.
type Product struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Handle         string          `json:"handle"`
	Description    string          `json:"description"` // HTML
	Vendor         string          `json:"vendor"`
	Type           string          `json:"type"`
	Price          int64           `json:"price"`
	CompareAtPrice int64           `json:"compare_at_price"`
	Available      bool            `json:"available"`
	FeaturedImage  string          `json:"featured_image"`
	Images         []string        `json:"images"`
	Options        []ProductOption `json:"options"`
	Variants       []Variant       `json:"variants"`
}

// ProductOption describes one option axis (e.g. "Size").
type ProductOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

// Variant is a purchasable SKU of a product.
type Variant struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	SKU            string `json:"sku"`
	Price          int64  `json:"price"`
	CompareAtPrice int64  `json:"compare_at_price"`
	Available      bool   `json:"available"`
	Option1        string `json:"option1"`
	Option2        string `json:"option2"`
	Option3        string `json:"option3"`
}

// Variant returns the variant with the given id, or nil.
func (p *Product) Variant(id int64) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// FirstAvailableVariant returns the first variant in stock, or nil.
func (p *Product) FirstAvailableVariant() *Variant {
	for i := range p.Variants {
		if p.Variants[i].Available {
			return &p.Variants[i]
		}
	}
	return nil
}

// HasOnlyDefaultVariant reports whether the product has a single untitled variant.
func (p *Product) HasOnlyDefaultVariant() bool {
	return len(p.Variants) == 1 && (p.Variants[0].Title == "" || p.Variants[0].Title == "Default Title")
}

// ============================================
// Collection Types
// Based on /collections/<handle>/products.json
// ============================================

type collectionResponse struct {
	Products []CollectionProduct `json:"products"`
}

// CollectionProduct is a product as listed by the collection endpoint.
// Unlike Product, prices here are decimal strings in major units.
type CollectionProduct struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Handle      string              `json:"handle"`
	BodyHTML    string              `json:"body_html"`
	Vendor      string              `json:"vendor"`
	ProductType string              `json:"product_type"`
	Variants    []CollectionVariant `json:"variants"`
	Images      []CollectionImage   `json:"images"`
}

// CollectionVariant is a variant in a collection listing.
type CollectionVariant struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	Available      bool    `json:"available"`
}

// CollectionImage is a product image reference.
type CollectionImage struct {
	Src string `json:"src"`
}

// PriceCents converts the decimal price to minor units (two decimals).
// Unparseable prices are reported as zero.
func (v *CollectionVariant) PriceCents() int64 {
	return toCents(v.Price)
}

// CompareAtCents returns the compare-at price in minor units, or 0.
func (v *CollectionVariant) CompareAtCents() int64 {
	if v.CompareAtPrice == nil {
		return 0
	}
	return toCents(*v.CompareAtPrice)
}

// DefaultVariant returns the first available variant, falling back to the first one.
func (p *CollectionProduct) DefaultVariant() *CollectionVariant {
	for i := range p.Variants {
		if p.Variants[i].Available {
			return &p.Variants[i]
		}
	}
	if len(p.Variants) > 0 {
		return &p.Variants[0]
	}
	return nil
}

// ImageURL returns the first image, or "".
func (p *CollectionProduct) ImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].Src
}

func toCents(s string) int64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Shift(2).Round(0).IntPart()
}

// ============================================
// Request / Error Payloads
// ============================================

type addItem struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type addRequest struct {
	Items []addItem `json:"items"`
}

type changeRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type updateRequest struct {
	Note string `json:"note"`
}

// platformError is the error body returned by the cart endpoints.
// Status is a number (422) or a string ("bad_request") depending on the endpoint.
type platformError struct {
	Status      any    `json:"status"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p platformError) text() string {
	if p.Description != "" {
		return p.Description
	}
	return p.Message
}
