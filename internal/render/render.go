// Package render draws cart fragments from store snapshots.
//
// Every fragment is a pure function of the snapshot it is handed: the same
// snapshot always renders the same text, an empty cart is valid input, and a
// cart without a currency is formatted with the formatter's fallback.
package render

import (
	"fmt"
	"strings"

	"github.com/thomas/storefront-terminal-go/internal/cartstate"
	"github.com/thomas/storefront-terminal-go/internal/money"
	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// Fragment redraws one piece of UI from a snapshot.
type Fragment interface {
	Render(cartstate.Snapshot) string
}

// FragmentFunc adapts a function to Fragment.
type FragmentFunc func(cartstate.Snapshot) string

// Render calls f.
func (f FragmentFunc) Render(s cartstate.Snapshot) string { return f(s) }

// Subscribable is implemented by *cartstate.Store.
type Subscribable interface {
	Subscribe(cartstate.Subscriber) cartstate.SubscriptionID
}

// Mount subscribes f to store and hands every redraw to sink.
func Mount(store Subscribable, f Fragment, sink func(string)) cartstate.SubscriptionID {
	return store.Subscribe(func(s cartstate.Snapshot) {
		sink(f.Render(s))
	})
}

// ErrorMessage returns the user-facing text for an error kind.
func ErrorMessage(kind shop.ErrorKind) string {
	switch kind {
	case shop.KindNone:
		return ""
	case shop.KindOutOfStock:
		return "Sorry, there isn't enough stock for that."
	case shop.KindNotFound:
		return "That item is no longer in your cart."
	case shop.KindValidation:
		return "That quantity isn't valid."
	case shop.KindDecode:
		return "The store sent an unexpected answer. Please try again."
	default:
		return "Couldn't reach the store. Please try again."
	}
}

// ============================================
// Drawer
// ============================================

// Drawer renders the cart's line items, total, note and status.
type Drawer struct {
	Money    money.Formatter
	Styles   Styles
	Selected int // highlighted line, -1 for none
}

// Render implements Fragment.
func (d Drawer) Render(s cartstate.Snapshot) string {
	var b strings.Builder
	cart := s.Cart

	title := fmt.Sprintf("Your cart (%d)", cart.Quantity())
	b.WriteString(d.Styles.HeaderTitle.Render(title))
	if s.Pending {
		b.WriteString("  " + d.Styles.LinePending.Render("updating…"))
	}
	b.WriteString("\n\n")

	if cart.IsEmpty() {
		b.WriteString(d.Styles.Subtle.Render("Your cart is empty."))
		b.WriteString("\n")
	}

	for i, it := range cart.Items {
		name := it.DisplayTitle()
		if name == "" {
			name = fmt.Sprintf("Variant %d", it.VariantID)
		}

		prefix := "  "
		nameStyle := d.Styles.Line.UnsetPaddingLeft()
		if i == d.Selected {
			prefix = "▸ "
			nameStyle = d.Styles.LineSelected
		}

		var detail string
		if strings.HasPrefix(it.Key, cartstate.PendingKeyPrefix) {
			detail = d.Styles.LinePending.Render(fmt.Sprintf("%d × adding…", it.Quantity))
		} else {
			detail = d.Styles.LineMeta.Render(fmt.Sprintf("%d × %s", it.Quantity, d.Money.Format(it.UnitPrice, cart.Currency))) +
				"  " + d.Styles.Price.Render(d.Money.Format(it.LinePrice, cart.Currency))
		}

		b.WriteString(prefix + nameStyle.Render(name) + "\n")
		b.WriteString("    " + detail + "\n")
	}

	b.WriteString(d.Styles.Total.Render("Total  " + d.Money.Format(cart.TotalPrice, cart.Currency)))
	b.WriteString("\n")

	if cart.Note != "" {
		b.WriteString(d.Styles.Subtle.Render("Note: " + cart.Note))
		b.WriteString("\n")
	}

	if msg := ErrorMessage(s.Kind()); msg != "" {
		b.WriteString("\n" + d.Styles.Error.Render("⚠ "+msg) + "\n")
	}

	return b.String()
}

// ============================================
// Badge
// ============================================

// Badge renders the header item count.
type Badge struct {
	Styles Styles
}

// Render implements Fragment.
func (bd Badge) Render(s cartstate.Snapshot) string {
	label := fmt.Sprintf("cart %d", s.Cart.Quantity())
	if s.Pending {
		label += " …"
	}
	return bd.Styles.Badge.Render(label)
}

// ============================================
// Upsell
// ============================================

// Upsell renders collection products that are not already in the cart.
type Upsell struct {
	Money    money.Formatter
	Styles   Styles
	Products []shop.CollectionProduct
	Limit    int
	Selected int // index into Candidates, -1 for none
}

// Candidates returns the products offered for the given cart.
func (u Upsell) Candidates(cart shop.Cart) []shop.CollectionProduct {
	var out []shop.CollectionProduct
	for _, p := range u.Products {
		if inCart(cart, p) {
			continue
		}
		v := p.DefaultVariant()
		if v == nil || !v.Available {
			continue
		}
		out = append(out, p)
		if u.Limit > 0 && len(out) == u.Limit {
			break
		}
	}
	return out
}

// Render implements Fragment.
func (u Upsell) Render(s cartstate.Snapshot) string {
	candidates := u.Candidates(s.Cart)
	if len(candidates) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(u.Styles.HeaderTitle.Render("You may also like"))
	b.WriteString("\n")
	for i, p := range candidates {
		v := p.DefaultVariant()
		prefix := "  "
		name := u.Styles.Line.UnsetPaddingLeft().Render(p.Title)
		if i == u.Selected {
			prefix = "▸ "
			name = u.Styles.LineSelected.Render(p.Title)
		}
		line := prefix + name + "  " + u.Styles.Price.Render(u.Money.Format(v.PriceCents(), s.Cart.Currency))
		if pct, ok := money.DiscountPercent(v.CompareAtCents(), v.PriceCents()); ok {
			line += "  " + u.Styles.Discount.Render(fmt.Sprintf("-%d%%", pct))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func inCart(cart shop.Cart, p shop.CollectionProduct) bool {
	for _, it := range cart.Items {
		if it.ProductID != 0 && it.ProductID == p.ID {
			return true
		}
		for _, v := range p.Variants {
			if it.VariantID == v.ID {
				return true
			}
		}
	}
	return false
}

// ============================================
// Summary
// ============================================

// Summary is a one-line plain text fragment for logs.
type Summary struct {
	Money money.Formatter
}

// Render implements Fragment.
func (sm Summary) Render(s cartstate.Snapshot) string {
	out := fmt.Sprintf("%s: %d items, %s", s.Phase, s.Cart.Quantity(), sm.Money.Format(s.Cart.TotalPrice, s.Cart.Currency))
	if kind := s.Kind(); kind != shop.KindNone {
		out += ", error " + kind.String()
	}
	return out
}
