package cartstate

import (
	"fmt"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// Intent is a cart mutation requested by the UI. Intents are consumed
// exactly once by a Store.
type Intent interface {
	fmt.Stringer

	// target names what the intent overwrites when queued; "" never coalesces.
	target() string
	validate() error
	// apply mutates cart speculatively. Prices are left untouched.
	apply(cart *shop.Cart)
}

// AddVariant adds Quantity units of a variant.
type AddVariant struct {
	VariantID int64
	Quantity  int
}

// SetQuantity sets a line's quantity; zero removes the line.
type SetQuantity struct {
	Key      string
	Quantity int
}

// RemoveLine removes a line.
type RemoveLine struct {
	Key string
}

// SetNote replaces the cart note.
type SetNote struct {
	Text string
}

// ClearCart removes every line.
type ClearCart struct{}

// Refresh re-reads the cart from the server without changing it.
type Refresh struct{}

func (i AddVariant) String() string {
	return fmt.Sprintf("add(variant=%d, qty=%d)", i.VariantID, i.Quantity)
}
func (i SetQuantity) String() string { return fmt.Sprintf("set(%s, qty=%d)", i.Key, i.Quantity) }
func (i RemoveLine) String() string  { return fmt.Sprintf("remove(%s)", i.Key) }
func (i SetNote) String() string     { return fmt.Sprintf("note(%d chars)", len(i.Text)) }
func (ClearCart) String() string     { return "clear" }
func (Refresh) String() string       { return "refresh" }

func (AddVariant) target() string    { return "" }
func (i SetQuantity) target() string { return "line:" + i.Key }
func (i RemoveLine) target() string  { return "line:" + i.Key }
func (SetNote) target() string       { return "note" }
func (ClearCart) target() string     { return "" }
func (Refresh) target() string       { return "refresh" }

func (i AddVariant) validate() error {
	if i.Quantity <= 0 {
		return shop.NewValidationError("intent.add", fmt.Sprintf("quantity must be positive, got %d", i.Quantity))
	}
	if i.VariantID <= 0 {
		return shop.NewValidationError("intent.add", fmt.Sprintf("invalid variant id %d", i.VariantID))
	}
	return nil
}

func (i SetQuantity) validate() error {
	if i.Key == "" {
		return shop.NewValidationError("intent.set", "line key is empty")
	}
	if i.Quantity < 0 {
		return shop.NewValidationError("intent.set", fmt.Sprintf("quantity must not be negative, got %d", i.Quantity))
	}
	return nil
}

func (i RemoveLine) validate() error {
	if i.Key == "" {
		return shop.NewValidationError("intent.remove", "line key is empty")
	}
	return nil
}

func (SetNote) validate() error   { return nil }
func (ClearCart) validate() error { return nil }
func (Refresh) validate() error   { return nil }

// PendingKeyPrefix marks placeholder lines created for variants not yet in
// the server cart.
const PendingKeyPrefix = "pending:"

func (i AddVariant) apply(cart *shop.Cart) {
	if idx := cart.LineForVariant(i.VariantID); idx >= 0 {
		cart.Items[idx].Quantity += i.Quantity
	} else {
		cart.Items = append(cart.Items, shop.LineItem{
			Key:       fmt.Sprintf("%s%d", PendingKeyPrefix, i.VariantID),
			VariantID: i.VariantID,
			Quantity:  i.Quantity,
		})
	}
	cart.ItemCount = cart.Quantity()
}

func (i SetQuantity) apply(cart *shop.Cart) {
	idx := cart.Line(i.Key)
	if idx < 0 {
		return
	}
	if i.Quantity == 0 {
		removeLine(cart, idx)
		return
	}
	cart.Items[idx].Quantity = i.Quantity
	cart.ItemCount = cart.Quantity()
}

func (i RemoveLine) apply(cart *shop.Cart) {
	if idx := cart.Line(i.Key); idx >= 0 {
		removeLine(cart, idx)
	}
}

func (i SetNote) apply(cart *shop.Cart) {
	cart.Note = i.Text
}

func (ClearCart) apply(cart *shop.Cart) {
	cart.Items = []shop.LineItem{}
	cart.ItemCount = 0
	cart.TotalPrice = 0
}

func (Refresh) apply(*shop.Cart) {}

func removeLine(cart *shop.Cart, idx int) {
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.ItemCount = cart.Quantity()
}

// Apply returns a copy of cart with in applied the way the store applies it
// while the intent is pending. Invalid intents leave the copy unchanged.
func Apply(cart shop.Cart, in Intent) shop.Cart {
	out := cart.Clone()
	if in != nil && in.validate() == nil {
		in.apply(&out)
	}
	if out.Items == nil {
		out.Items = []shop.LineItem{}
	}
	return out
}
