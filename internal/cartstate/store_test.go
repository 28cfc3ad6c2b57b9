package cartstate

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

func (f *fakeTransport) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// checkShape fails the test if a snapshot cart is not a complete cart.
func checkShape(t *testing.T, s Snapshot) {
	t.Helper()
	if s.Cart.Items == nil {
		t.Fatal("snapshot cart has nil items")
	}
	seen := map[string]bool{}
	for _, it := range s.Cart.Items {
		if it.Key == "" {
			t.Errorf("line without key: %+v", it)
		}
		if seen[it.Key] {
			t.Errorf("duplicate key %s", it.Key)
		}
		seen[it.Key] = true
		if it.Quantity <= 0 {
			t.Errorf("line %s has quantity %d", it.Key, it.Quantity)
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestAddVariantToEmptyCart(t *testing.T) {
	h := newHarness(t, nil)

	pending, idle := h.settle(AddVariant{VariantID: 123, Quantity: 2})

	if !pending.Pending || pending.Phase != Pending {
		t.Fatalf("expected pending notification, got %+v", pending)
	}
	if len(pending.Cart.Items) != 1 || pending.Cart.Items[0].Quantity != 2 {
		t.Fatalf("expected speculative line with quantity 2, got %+v", pending.Cart.Items)
	}
	if !strings.HasPrefix(pending.Cart.Items[0].Key, PendingKeyPrefix) {
		t.Errorf("expected placeholder key, got %q", pending.Cart.Items[0].Key)
	}

	if idle.Pending || idle.Err != nil {
		t.Fatalf("expected clean idle notification, got %+v", idle)
	}
	if len(idle.Cart.Items) != 1 {
		t.Fatalf("expected exactly one line, got %d", len(idle.Cart.Items))
	}
	line := idle.Cart.Items[0]
	if line.VariantID != 123 || line.Quantity != 2 {
		t.Errorf("expected variant 123 x2, got %+v", line)
	}
	if strings.HasPrefix(line.Key, PendingKeyPrefix) {
		t.Errorf("expected server key after reconciliation, got %q", line.Key)
	}
	if idle.Cart.TotalPrice != 2000 {
		t.Errorf("expected server total 2000, got %d", idle.Cart.TotalPrice)
	}
}

func TestAddVariantBumpsExistingLine(t *testing.T) {
	ft := newFakeTransport()
	ft.seed(5, 1)
	h := newHarness(t, ft)

	pending, _ := h.settle(AddVariant{VariantID: 5, Quantity: 2})
	if len(pending.Cart.Items) != 1 || pending.Cart.Items[0].Quantity != 3 {
		t.Errorf("expected existing line bumped to 3, got %+v", pending.Cart.Items)
	}
	if pending.Cart.ItemCount != 3 {
		t.Errorf("expected item count 3, got %d", pending.Cart.ItemCount)
	}
	// prices stay stale until reconciliation
	if pending.Cart.Items[0].LinePrice != 1000 {
		t.Errorf("expected untouched line price, got %d", pending.Cart.Items[0].LinePrice)
	}
}

func TestFailedAddRestoresLastConfirmedCart(t *testing.T) {
	ft := newFakeTransport()
	ft.seed(7, 2)
	ft.setFail(&shop.Error{Kind: shop.KindOutOfStock, Op: "cart.add", Status: 422, Message: "All 2 are in your cart."})
	h := newHarness(t, ft)

	before := mustJSON(t, h.store.Snapshot().Cart)

	pending, idle := h.settle(AddVariant{VariantID: 7, Quantity: 5})
	if !pending.Pending || pending.Cart.Items[0].Quantity != 7 {
		t.Fatalf("expected speculative quantity 7, got %+v", pending)
	}
	if idle.Pending {
		t.Error("expected pending=false after failure")
	}
	if idle.Kind() != shop.KindOutOfStock {
		t.Errorf("expected out of stock, got %v", idle.Err)
	}
	if got := mustJSON(t, idle.Cart); got != before {
		t.Errorf("cart not restored:\n got %s\nwant %s", got, before)
	}
	if got := mustJSON(t, h.store.Snapshot().Cart); got != before {
		t.Errorf("snapshot not restored:\n got %s\nwant %s", got, before)
	}
}

func TestRemoveThenFetchConfirmsAbsence(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 2)
	other := ft.seed(8, 1)
	h := newHarness(t, ft)

	pending, idle := h.settle(SetQuantity{Key: key, Quantity: 0})
	if pending.Cart.Line(key) != -1 {
		t.Error("expected line removed speculatively")
	}
	if idle.Cart.Line(key) != -1 || idle.Cart.Line(other) == -1 {
		t.Errorf("unexpected cart after removal: %+v", idle.Cart.Items)
	}

	cart, err := ft.FetchCart(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cart.Line(key) != -1 {
		t.Error("server still has the removed line")
	}

	_, refreshed := h.settle(Refresh{})
	if refreshed.Cart.Line(key) != -1 {
		t.Error("refreshed snapshot still has the removed line")
	}
}

func TestRemoveLine(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 2)
	h := newHarness(t, ft)

	_, idle := h.settle(RemoveLine{Key: key})
	if !idle.Cart.IsEmpty() {
		t.Errorf("expected empty cart, got %+v", idle.Cart.Items)
	}
	if c := ft.lastCall(); c.op != "change" || c.qty != 0 {
		t.Errorf("expected change with quantity 0, got %+v", c)
	}
}

func TestRapidQuantityChangesCoalesce(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 1)
	ft.gate = make(chan struct{})
	h := newHarness(t, ft)

	h.store.Dispatch(SetQuantity{Key: key, Quantity: 3})
	if s := h.next(); !s.Pending || s.Cart.Items[0].Quantity != 3 {
		t.Fatalf("expected pending quantity 3, got %+v", s)
	}
	h.waitStarted()

	h.store.Dispatch(SetQuantity{Key: key, Quantity: 2})
	h.store.Dispatch(SetQuantity{Key: key, Quantity: 5})
	if s := h.next(); !s.Pending || s.Phase != Reconciling || s.Cart.Items[0].Quantity != 2 {
		t.Fatalf("expected queued quantity 2 to be displayed, got %+v", s)
	}
	if s := h.next(); !s.Pending || s.Cart.Items[0].Quantity != 5 {
		t.Fatalf("expected queued quantity 5 to be displayed, got %+v", s)
	}

	ft.gate <- struct{}{}
	if s := h.next(); s.Pending || s.Cart.Items[0].Quantity != 3 {
		t.Fatalf("expected idle with server quantity 3, got %+v", s)
	}
	if s := h.next(); !s.Pending || s.Cart.Items[0].Quantity != 5 {
		t.Fatalf("expected pending quantity 5, got %+v", s)
	}
	if c := h.waitStarted(); c.qty != 5 {
		t.Fatalf("expected follow-up call with quantity 5, got %+v", c)
	}

	ft.gate <- struct{}{}
	final := h.next()
	if final.Pending || final.Cart.Items[0].Quantity != 5 {
		t.Fatalf("expected idle quantity 5, got %+v", final)
	}
	if n := ft.callCount("change"); n != 2 {
		t.Errorf("expected exactly 2 change calls, got %d", n)
	}
	if ph := h.store.Snapshot().Phase; ph != Idle {
		t.Errorf("expected idle store, got %s", ph)
	}
}

func TestSnapshotsCarryTickets(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 1)
	ft.gate = make(chan struct{})
	h := newHarness(t, ft)

	first := h.store.Submit(SetQuantity{Key: key, Quantity: 2})
	if s := h.next(); s.Seq != first || s.Settled != 0 {
		t.Fatalf("pending: seq=%d settled=%d, want %d/0", s.Seq, s.Settled, first)
	}
	h.waitStarted()

	h.store.Submit(SetQuantity{Key: key, Quantity: 3})
	last := h.store.Submit(SetQuantity{Key: key, Quantity: 4})
	if last <= first {
		t.Fatalf("tickets must grow: %d then %d", first, last)
	}
	h.next()
	if s := h.next(); s.Seq != last || s.Settled != 0 || s.Cart.Items[0].Quantity != 4 {
		t.Fatalf("queued: %+v", s)
	}

	ft.gate <- struct{}{}
	if s := h.next(); s.Pending || s.Seq != first || s.Settled != first {
		t.Fatalf("first settled: seq=%d settled=%d pending=%v", s.Seq, s.Settled, s.Pending)
	}
	if s := h.next(); !s.Pending || s.Seq != last {
		t.Fatalf("next pending: seq=%d", s.Seq)
	}

	ft.gate <- struct{}{}
	if s := h.next(); s.Pending || s.Settled != last || s.Cart.Items[0].Quantity != 4 {
		t.Fatalf("final: %+v", s)
	}
}

func TestFailureSettlesEveryTicket(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 1)
	ft.gate = make(chan struct{})
	h := newHarness(t, ft)

	h.store.Submit(SetQuantity{Key: key, Quantity: 2})
	h.next()
	h.waitStarted()
	last := h.store.Submit(SetQuantity{Key: key, Quantity: 3})
	h.next()

	ft.setFail(&shop.Error{Kind: shop.KindNetwork, Op: "cart.change"})
	ft.gate <- struct{}{}
	s := h.next()
	if s.Err == nil || s.Settled != last || s.Seq != last {
		t.Fatalf("failure: err=%v seq=%d settled=%d, want %d", s.Err, s.Seq, s.Settled, last)
	}
}

func TestAppliedAddReadsCartBack(t *testing.T) {
	ft := newFakeTransport()
	h := startHarness(t, ft, lostReadTransport{ft})

	pending, idle := h.settle(AddVariant{VariantID: 7, Quantity: 1})
	if !pending.Pending {
		t.Fatalf("expected pending notification, got %+v", pending)
	}
	if idle.Pending || idle.Err != nil {
		t.Fatalf("an applied add must not be reported as failed, got %+v", idle)
	}
	if len(idle.Cart.Items) != 1 || idle.Cart.Items[0].VariantID != 7 {
		t.Fatalf("the added line must not be rolled back, got %+v", idle.Cart.Items)
	}

	if s := h.next(); !s.Pending {
		t.Fatalf("expected refresh to start, got %+v", s)
	}
	final := h.next()
	if final.Pending || final.Err != nil {
		t.Fatalf("expected clean idle after refresh, got %+v", final)
	}
	if len(final.Cart.Items) != 1 || strings.HasPrefix(final.Cart.Items[0].Key, PendingKeyPrefix) {
		t.Fatalf("expected the server line after refresh, got %+v", final.Cart.Items)
	}
	if ft.callCount("add") != 1 || ft.callCount("fetch") != 1 {
		t.Errorf("calls: add=%d fetch=%d, want 1/1", ft.callCount("add"), ft.callCount("fetch"))
	}
}

func TestApplyMatchesSpeculation(t *testing.T) {
	cart := shop.Cart{Items: []shop.LineItem{{Key: "7:a", VariantID: 7, Quantity: 2}}}

	got := Apply(cart, SetQuantity{Key: "7:a", Quantity: 5})
	if got.Items[0].Quantity != 5 || cart.Items[0].Quantity != 2 {
		t.Errorf("Apply must work on a copy: got %d, original %d", got.Items[0].Quantity, cart.Items[0].Quantity)
	}
	if got := Apply(cart, SetQuantity{Key: "7:a", Quantity: -1}); got.Items[0].Quantity != 2 {
		t.Errorf("invalid intents must leave the cart alone, got %d", got.Items[0].Quantity)
	}
	if got := Apply(cart, RemoveLine{Key: "7:a"}); len(got.Items) != 0 || got.Items == nil {
		t.Errorf("remove: %+v", got.Items)
	}
}

func TestQueuedNotesCoalesce(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	h := newHarness(t, ft)

	h.store.Dispatch(SetNote{Text: "a"})
	h.next()
	h.waitStarted()

	h.store.Dispatch(SetNote{Text: "ab"})
	h.store.Dispatch(SetNote{Text: "abc"})
	h.next()
	if s := h.next(); s.Cart.Note != "abc" {
		t.Fatalf("expected displayed note abc, got %q", s.Cart.Note)
	}

	ft.gate <- struct{}{}
	h.next() // idle "a"
	h.next() // pending "abc"
	if c := h.waitStarted(); c.note != "abc" {
		t.Fatalf("expected note abc to be sent, got %q", c.note)
	}
	ft.gate <- struct{}{}
	if s := h.next(); s.Pending || s.Cart.Note != "abc" {
		t.Fatalf("expected confirmed note abc, got %+v", s)
	}
	if n := ft.callCount("note"); n != 2 {
		t.Errorf("expected 2 note calls, got %d", n)
	}
}

func TestFailureDropsQueuedIntents(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 1)
	ft.gate = make(chan struct{})
	h := newHarness(t, ft)
	before := mustJSON(t, h.store.Snapshot().Cart)

	h.store.Dispatch(SetQuantity{Key: key, Quantity: 4})
	h.next()
	h.waitStarted()

	h.store.Dispatch(AddVariant{VariantID: 9, Quantity: 1})
	if s := h.next(); len(s.Cart.Items) != 2 {
		t.Fatalf("expected queued add to be displayed, got %+v", s.Cart.Items)
	}

	ft.setFail(&shop.Error{Kind: shop.KindNetwork, Op: "cart.change", Status: 503})
	ft.gate <- struct{}{}

	s := h.next()
	if s.Pending || !errors.Is(s.Err, shop.ErrNetwork) {
		t.Fatalf("expected network failure, got %+v", s)
	}
	if got := mustJSON(t, s.Cart); got != before {
		t.Errorf("cart not restored:\n got %s\nwant %s", got, before)
	}
	if n := ft.callCount("add"); n != 0 {
		t.Errorf("queued add must be dropped, got %d add calls", n)
	}
	if h.store.Snapshot().Phase != Idle {
		t.Error("expected idle store after failure")
	}
}

func TestNotFoundLine(t *testing.T) {
	h := newHarness(t, nil)

	pending, idle := h.settle(SetQuantity{Key: "gone:1", Quantity: 2})
	if !pending.Pending || !pending.Cart.IsEmpty() {
		t.Errorf("expected unchanged speculative cart, got %+v", pending)
	}
	if idle.Kind() != shop.KindNotFound {
		t.Errorf("expected not found, got %v", idle.Err)
	}
}

func TestInvalidIntentsNeverReachTransport(t *testing.T) {
	h := newHarness(t, nil)

	for _, in := range []Intent{
		AddVariant{VariantID: 1, Quantity: 0},
		AddVariant{VariantID: 1, Quantity: -2},
		SetQuantity{Key: "k", Quantity: -1},
		SetQuantity{Key: "", Quantity: 1},
		RemoveLine{},
	} {
		h.store.Dispatch(in)
		s := h.next()
		if s.Pending || s.Kind() != shop.KindValidation {
			t.Errorf("%s: expected validation error, got %+v", in, s)
		}
		checkShape(t, s)
	}
	if n := h.transport.callCount(""); n != 0 {
		t.Errorf("expected no transport calls, got %d", n)
	}
}

func TestNoOpIntentStillTransitions(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 2)
	h := newHarness(t, ft)
	before := h.store.Snapshot().Cart

	pending, idle := h.settle(SetQuantity{Key: key, Quantity: 2})
	if !pending.Pending || idle.Pending {
		t.Fatalf("expected Pending then Idle, got %v then %v", pending.Pending, idle.Pending)
	}
	if !reflect.DeepEqual(idle.Cart, before) {
		t.Errorf("expected cart unchanged:\n got %+v\nwant %+v", idle.Cart, before)
	}
}

func TestNotificationsFollowEveryTransition(t *testing.T) {
	ft := newFakeTransport()
	key := ft.seed(7, 1)
	h := newHarness(t, ft)

	var flags []bool
	for _, in := range []Intent{
		AddVariant{VariantID: 8, Quantity: 1},
		SetQuantity{Key: key, Quantity: 4},
		SetNote{Text: "leave at door"},
		ClearCart{},
	} {
		p, i := h.settle(in)
		checkShape(t, p)
		checkShape(t, i)
		flags = append(flags, p.Pending, i.Pending)
	}

	want := []bool{true, false, true, false, true, false, true, false}
	if !reflect.DeepEqual(flags, want) {
		t.Errorf("pending flags = %v, want %v", flags, want)
	}
	if snap := h.store.Snapshot(); !snap.Cart.IsEmpty() || snap.Cart.Note != "leave at door" {
		t.Errorf("unexpected final cart: %+v", snap.Cart)
	}
}

func TestSetNoteConfirmsSpeculativeCart(t *testing.T) {
	h := newHarness(t, nil)

	_, idle := h.settle(SetNote{Text: "gift wrap"})
	if idle.Cart.Note != "gift wrap" || idle.Err != nil {
		t.Errorf("expected confirmed note, got %+v", idle)
	}
	h.transport.mu.Lock()
	note := h.transport.cart.Note
	h.transport.mu.Unlock()
	if note != "gift wrap" {
		t.Errorf("server note = %q", note)
	}
}

func TestReconcileTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	h := newHarness(t, ft, WithTimeout(30*time.Millisecond))

	_, idle := h.settle(Refresh{})
	if idle.Kind() != shop.KindNetwork {
		t.Errorf("expected timeout to surface as network error, got %v", idle.Err)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t, nil)

	count := make(chan struct{}, 16)
	id := h.store.Subscribe(func(Snapshot) { count <- struct{}{} })
	h.settle(Refresh{})
	for i := 0; i < 2; i++ {
		select {
		case <-count:
		case <-time.After(2 * time.Second):
			t.Fatalf("second subscriber missed notification %d", i)
		}
	}

	h.store.Unsubscribe(id)
	h.settle(Refresh{})
	if len(count) != 0 {
		t.Errorf("expected no notifications after unsubscribe, got %d", len(count))
	}
}

func TestSubscribersReceiveCopies(t *testing.T) {
	ft := newFakeTransport()
	ft.seed(7, 1)
	h := newHarness(t, ft)
	h.store.Subscribe(func(s Snapshot) {
		if len(s.Cart.Items) > 0 {
			s.Cart.Items[0].Quantity = 99
		}
	})

	h.settle(Refresh{})
	if q := h.store.Snapshot().Cart.Items[0].Quantity; q != 1 {
		t.Errorf("subscriber mutated store state: quantity %d", q)
	}
}
