package mockshop

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

type cartLine struct {
	key       string
	variantID int64
	quantity  int
}

type cartState struct {
	token string
	note  string
	lines []cartLine
}

func newCartState() *cartState {
	return &cartState{token: uuid.NewString()}
}

// newLineKey returns "<variant>:<8 hex>".
func newLineKey(variantID int64) string {
	id := uuid.New()
	return fmt.Sprintf("%d:%x", variantID, id[:4])
}

func (c *cartState) lineFor(variantID int64) int {
	for i, l := range c.lines {
		if l.variantID == variantID {
			return i
		}
	}
	return -1
}

func (c *cartState) lineByKey(key string) int {
	for i, l := range c.lines {
		if l.key == key {
			return i
		}
	}
	return -1
}

type variantRef struct {
	product *Product
	variant *Variant
}

func (r variantRef) lineTitle() string {
	if r.variant.Title == "" || r.variant.Title == "Default Title" {
		return r.product.Title
	}
	return r.product.Title + " - " + r.variant.Title
}

func (r variantRef) lineItem(l cartLine) shop.LineItem {
	it := shop.LineItem{
		Key:          l.key,
		VariantID:    l.variantID,
		ProductID:    r.product.ID,
		Title:        r.lineTitle(),
		ProductTitle: r.product.Title,
		VariantTitle: r.variant.Title,
		Handle:       r.product.Handle,
		UnitPrice:    r.variant.Price,
		LinePrice:    r.variant.Price * int64(l.quantity),
		Quantity:     l.quantity,
	}
	if len(r.product.Images) > 0 {
		it.ImageURL = r.product.Images[0]
	}
	return it
}
