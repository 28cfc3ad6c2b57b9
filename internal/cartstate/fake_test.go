package cartstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// call records one transport invocation.
type call struct {
	op      string
	key     string
	variant int64
	qty     int
	note    string
}

// fakeTransport is an in-memory cart server. When gate is set, every call
// waits for a value on it before answering.
type fakeTransport struct {
	mu       sync.Mutex
	cart     shop.Cart
	calls    []call
	failNext error
	gate     chan struct{}
	started  chan call
	seq      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		cart:    shop.Cart{Currency: "USD", Items: []shop.LineItem{}},
		started: make(chan call, 32),
	}
}

func (f *fakeTransport) enter(ctx context.Context, c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate := f.gate
	f.mu.Unlock()

	f.started <- c
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeTransport) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if op == "" || c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// recalc must be called with mu held.
func (f *fakeTransport) recalc() {
	var total int64
	count := 0
	for i := range f.cart.Items {
		it := &f.cart.Items[i]
		it.LinePrice = it.UnitPrice * int64(it.Quantity)
		total += it.LinePrice
		count += it.Quantity
	}
	f.cart.TotalPrice = total
	f.cart.ItemCount = count
}

func (f *fakeTransport) snapshot() *shop.Cart {
	c := f.cart.Clone()
	return &c
}

func (f *fakeTransport) FetchCart(ctx context.Context) (*shop.Cart, error) {
	if err := f.enter(ctx, call{op: "fetch"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(), nil
}

func (f *fakeTransport) AddVariant(ctx context.Context, variantID int64, quantity int) (*shop.Cart, error) {
	if err := f.enter(ctx, call{op: "add", variant: variantID, qty: quantity}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.cart.LineForVariant(variantID); idx >= 0 {
		f.cart.Items[idx].Quantity += quantity
	} else {
		f.seq++
		f.cart.Items = append(f.cart.Items, shop.LineItem{
			Key:       fmt.Sprintf("%d:k%d", variantID, f.seq),
			VariantID: variantID,
			Title:     fmt.Sprintf("Variant %d", variantID),
			UnitPrice: 1000,
			Quantity:  quantity,
		})
	}
	f.recalc()
	return f.snapshot(), nil
}

func (f *fakeTransport) SetLineQuantity(ctx context.Context, key string, quantity int) (*shop.Cart, error) {
	if err := f.enter(ctx, call{op: "change", key: key, qty: quantity}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.cart.Line(key)
	if idx < 0 {
		return nil, &shop.Error{Kind: shop.KindNotFound, Op: "cart.change", Status: 400}
	}
	if quantity == 0 {
		f.cart.Items = append(f.cart.Items[:idx], f.cart.Items[idx+1:]...)
	} else {
		f.cart.Items[idx].Quantity = quantity
	}
	f.recalc()
	return f.snapshot(), nil
}

func (f *fakeTransport) SetNote(ctx context.Context, note string) error {
	if err := f.enter(ctx, call{op: "note", note: note}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart.Note = note
	return nil
}

func (f *fakeTransport) ClearCart(ctx context.Context) (*shop.Cart, error) {
	if err := f.enter(ctx, call{op: "clear"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart.Items = []shop.LineItem{}
	f.recalc()
	return f.snapshot(), nil
}

// seed puts a line into the server cart and returns its key.
func (f *fakeTransport) seed(variantID int64, qty int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	key := fmt.Sprintf("%d:k%d", variantID, f.seq)
	f.cart.Items = append(f.cart.Items, shop.LineItem{
		Key: key, VariantID: variantID, Title: "Seeded", UnitPrice: 1000, Quantity: qty,
	})
	f.recalc()
	return key
}

// ============================================
// Harness
// ============================================

type harness struct {
	t         *testing.T
	store     *Store
	transport *fakeTransport
	notes     chan Snapshot
}

func newHarness(t *testing.T, ft *fakeTransport, opts ...Option) *harness {
	t.Helper()
	if ft == nil {
		ft = newFakeTransport()
	}
	return startHarness(t, ft, ft, opts...)
}

// startHarness runs a store over transport; ft is the fake behind it.
func startHarness(t *testing.T, ft *fakeTransport, transport Transport, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		transport: ft,
		notes:     make(chan Snapshot, 128),
	}
	opts = append([]Option{WithInitialCart(*ft.snapshot())}, opts...)
	h.store = NewStore(transport, opts...)
	h.store.Subscribe(func(s Snapshot) { h.notes <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.store.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// next returns the next notification or fails the test.
func (h *harness) next() Snapshot {
	h.t.Helper()
	select {
	case s := <-h.notes:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for notification")
	}
	return Snapshot{}
}

// waitStarted blocks until the transport receives a call.
func (h *harness) waitStarted() call {
	h.t.Helper()
	select {
	case c := <-h.transport.started:
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for transport call")
	}
	return call{}
}

// settle dispatches in and returns the Pending and the Idle notifications.
func (h *harness) settle(in Intent) (Snapshot, Snapshot) {
	h.t.Helper()
	h.store.Dispatch(in)
	return h.next(), h.next()
}

// lostReadTransport applies adds but reports that the cart could not be read back.
type lostReadTransport struct {
	*fakeTransport
}

func (l lostReadTransport) AddVariant(ctx context.Context, variantID int64, quantity int) (*shop.Cart, error) {
	if _, err := l.fakeTransport.AddVariant(ctx, variantID, quantity); err != nil {
		return nil, err
	}
	return nil, &shop.Error{Kind: shop.KindNetwork, Op: "cart.add", Status: 502, Applied: true}
}
