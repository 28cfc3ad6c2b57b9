package mockshop

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

//go:embed testdata/catalog.json
var defaultCatalog []byte

// Catalog is the fixture the mock platform serves. Prices are minor units.
type Catalog struct {
	Currency    string       `json:"currency"`
	Collections []Collection `json:"collections"`
	Products    []Product    `json:"products"`
}

// Collection names a group of products. "all" holds every product.
type Collection struct {
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// Product is a catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	Vendor      string    `json:"vendor"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Collections []string  `json:"collections"`
	Images      []string  `json:"images"`
	Options     []string  `json:"options"`
	Variants    []Variant `json:"variants"`
}

// Variant is a purchasable SKU with a stock level.
type Variant struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	SKU            string `json:"sku"`
	Price          int64  `json:"price"`
	CompareAtPrice int64  `json:"compare_at_price"`
	Inventory      int    `json:"inventory"`
	Option1        string `json:"option1"`
}

// DefaultCatalog returns the embedded demo catalog.
func DefaultCatalog() (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(defaultCatalog, &c); err != nil {
		return nil, fmt.Errorf("parsing embedded catalog: %w", err)
	}
	return &c, c.validate()
}

// LoadCatalog reads a catalog in the embedded format.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &c, c.validate()
}

func (c *Catalog) validate() error {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	handles := make(map[string]bool)
	variants := make(map[int64]bool)
	for _, p := range c.Products {
		if p.Handle == "" {
			return fmt.Errorf("product %d has no handle", p.ID)
		}
		if handles[p.Handle] {
			return fmt.Errorf("duplicate product handle %q", p.Handle)
		}
		handles[p.Handle] = true
		if len(p.Variants) == 0 {
			return fmt.Errorf("product %q has no variants", p.Handle)
		}
		for _, v := range p.Variants {
			if variants[v.ID] {
				return fmt.Errorf("duplicate variant id %d", v.ID)
			}
			variants[v.ID] = true
		}
	}
	if len(c.Products) == 0 {
		return errors.New("catalog has no products")
	}
	return nil
}

func (p *Product) inCollection(handle string) bool {
	if handle == "all" {
		return true
	}
	for _, h := range p.Collections {
		if h == handle {
			return true
		}
	}
	return false
}

func (p *Product) available() bool {
	for _, v := range p.Variants {
		if v.Inventory > 0 {
			return true
		}
	}
	return false
}

// storefront renders the product as served by /products/<handle>.js.
func (p *Product) storefront() shop.Product {
	out := shop.Product{
		ID:          p.ID,
		Title:       p.Title,
		Handle:      p.Handle,
		Description: p.Description,
		Vendor:      p.Vendor,
		Type:        p.Type,
		Available:   p.available(),
		Images:      append([]string{}, p.Images...),
		Price:       p.Variants[0].Price,
	}
	if len(p.Images) > 0 {
		out.FeaturedImage = p.Images[0]
	}
	for i, name := range p.Options {
		opt := shop.ProductOption{Name: name, Position: i + 1}
		if i == 0 {
			for _, v := range p.Variants {
				opt.Values = append(opt.Values, v.Option1)
			}
		}
		out.Options = append(out.Options, opt)
	}
	for _, v := range p.Variants {
		if v.Price < out.Price {
			out.Price = v.Price
		}
		if v.CompareAtPrice > out.CompareAtPrice {
			out.CompareAtPrice = v.CompareAtPrice
		}
		out.Variants = append(out.Variants, shop.Variant{
			ID:             v.ID,
			Title:          v.Title,
			SKU:            v.SKU,
			Price:          v.Price,
			CompareAtPrice: v.CompareAtPrice,
			Available:      v.Inventory > 0,
			Option1:        v.Option1,
		})
	}
	return out
}

// listing renders the product as served by /collections/<handle>/products.json,
// where prices are decimal strings.
func (p *Product) listing() shop.CollectionProduct {
	out := shop.CollectionProduct{
		ID:          p.ID,
		Title:       p.Title,
		Handle:      p.Handle,
		BodyHTML:    p.Description,
		Vendor:      p.Vendor,
		ProductType: p.Type,
		Images:      []shop.CollectionImage{},
	}
	for _, src := range p.Images {
		out.Images = append(out.Images, shop.CollectionImage{Src: src})
	}
	for _, v := range p.Variants {
		cv := shop.CollectionVariant{
			ID:        v.ID,
			Title:     v.Title,
			Price:     majorUnits(v.Price),
			Available: v.Inventory > 0,
		}
		if v.CompareAtPrice > 0 {
			s := majorUnits(v.CompareAtPrice)
			cv.CompareAtPrice = &s
		}
		out.Variants = append(out.Variants, cv)
	}
	return out
}

func majorUnits(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
