// Package cartstate keeps an optimistic in-process mirror of the server cart.
//
// A Store owns the cart on a single goroutine (Run). UI code dispatches
// Intents; the store applies each one speculatively, reconciles it with the
// server through a Transport, and notifies subscribers on every transition.
// At most one transport call is in flight; intents arriving meanwhile are
// queued and coalesced per line.
package cartstate

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// DefaultTimeout bounds each reconciling call.
const DefaultTimeout = 10 * time.Second

// Transport is the subset of the storefront client the store needs.
type Transport interface {
	FetchCart(ctx context.Context) (*shop.Cart, error)
	AddVariant(ctx context.Context, variantID int64, quantity int) (*shop.Cart, error)
	SetLineQuantity(ctx context.Context, key string, quantity int) (*shop.Cart, error)
	SetNote(ctx context.Context, note string) error
	ClearCart(ctx context.Context) (*shop.Cart, error)
}

// Phase is the store's position in the Idle → Pending → Reconciling cycle.
type Phase int

const (
	Idle Phase = iota
	Pending
	Reconciling
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Reconciling:
		return "reconciling"
	}
	return "unknown"
}

// Snapshot is what subscribers see after a transition.
type Snapshot struct {
	Cart    shop.Cart
	Pending bool
	Err     error
	Phase   Phase

	// Seq is the ticket of the newest intent reflected in Cart.
	Seq uint64
	// Settled is the ticket up to which every intent has been confirmed,
	// rolled back or dropped.
	Settled uint64
}

// Kind returns the error kind of the snapshot, KindNone when there is no error.
func (s Snapshot) Kind() shop.ErrorKind {
	return shop.KindOf(s.Err)
}

func (s Snapshot) clone() Snapshot {
	s.Cart = s.Cart.Clone()
	return s
}

// Subscriber receives a private copy of every snapshot, in transition order,
// on the store goroutine. It must not block for long.
type Subscriber func(Snapshot)

// SubscriptionID identifies a subscriber for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Subscriber
}

// ticket is an intent numbered in dispatch order.
type ticket struct {
	seq    uint64
	intent Intent
}

type result struct {
	intent Intent
	cart   *shop.Cart
	err    error
}

// Store is the single owner of the in-memory cart.
type Store struct {
	transport Transport
	logger    *log.Logger
	timeout   time.Duration

	mu      sync.Mutex
	mailbox []ticket
	lastSeq uint64
	wake    chan struct{}
	results chan result

	// owned by the Run goroutine
	phase       Phase
	confirmed   shop.Cart
	inflight    Intent
	inflightSeq uint64
	queue       []ticket
	accepted    uint64
	settled     uint64

	snapMu sync.RWMutex
	snap   Snapshot

	subMu  sync.Mutex
	subs   []subscription
	nextID SubscriptionID
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transitions.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout sets the per-call timeout for reconciling calls.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInitialCart seeds the store with a cart rendered by the server, so the
// first snapshot is meaningful before any call completes.
func WithInitialCart(cart shop.Cart) Option {
	return func(s *Store) {
		s.confirmed = normalize(cart.Clone())
	}
}

// NewStore creates a store in the Idle phase.
func NewStore(t Transport, opts ...Option) *Store {
	s := &Store{
		transport: t,
		logger:    log.New(io.Discard),
		timeout:   DefaultTimeout,
		wake:      make(chan struct{}, 1),
		results:   make(chan result, 1),
		confirmed: shop.Cart{Items: []shop.LineItem{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{Cart: s.confirmed.Clone(), Phase: Idle}
	return s
}

// ============================================
// Public API
// ============================================

// Dispatch hands an intent to the store. It never blocks; the intent is
// processed by Run.
func (s *Store) Dispatch(in Intent) {
	s.Submit(in)
}

// Submit is Dispatch returning the intent's ticket. Tickets grow in call
// order; a snapshot reflects an intent once its Seq reaches the ticket.
func (s *Store) Submit(in Intent) uint64 {
	if in == nil {
		return 0
	}
	s.mu.Lock()
	s.lastSeq++
	seq := s.lastSeq
	s.mailbox = append(s.mailbox, ticket{seq: seq, intent: in})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return seq
}

// Subscribe registers fn for every future transition.
func (s *Store) Subscribe(fn Subscriber) SubscriptionID {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	s.subs = append(s.subs, subscription{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (s *Store) Unsubscribe(id SubscriptionID) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool {
		return sub.id == id
	})
}

// Snapshot returns a copy of the latest published state.
func (s *Store) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.clone()
}

// Run owns the cart until ctx is done. It must be called exactly once.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			for _, t := range s.drain() {
				s.accept(ctx, t)
			}
		case res := <-s.results:
			s.settle(ctx, res)
		}
	}
}

// ============================================
// State Machine
// ============================================

func (s *Store) drain() []ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.mailbox
	s.mailbox = nil
	return out
}

func (s *Store) accept(ctx context.Context, t ticket) {
	s.accepted = t.seq
	if err := t.intent.validate(); err != nil {
		s.logger.Warn("intent rejected", "intent", t.intent, "err", err)
		if s.phase == Idle {
			s.settled = t.seq
		}
		s.publish(s.Snapshot().Cart, s.phase != Idle, err, t.seq)
		return
	}

	if s.phase == Idle {
		s.begin(ctx, t)
		return
	}

	s.enqueue(t)
	s.logger.Debug("intent queued", "intent", t.intent, "queued", len(s.queue))
	s.publish(s.speculate(), true, nil, s.accepted)
}

// begin moves an intent through Pending into Reconciling.
func (s *Store) begin(ctx context.Context, t ticket) {
	s.phase = Pending
	s.inflight, s.inflightSeq = t.intent, t.seq
	s.logger.Debug("intent pending", "intent", t.intent)
	s.publish(s.speculate(), true, nil, s.accepted)

	s.phase = Reconciling
	go s.call(ctx, t.intent)
}

func (s *Store) call(ctx context.Context, in Intent) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cart, err := s.invoke(ctx, in)
	s.results <- result{intent: in, cart: cart, err: err}
}

func (s *Store) invoke(ctx context.Context, in Intent) (*shop.Cart, error) {
	switch in := in.(type) {
	case AddVariant:
		return s.transport.AddVariant(ctx, in.VariantID, in.Quantity)
	case SetQuantity:
		return s.transport.SetLineQuantity(ctx, in.Key, in.Quantity)
	case RemoveLine:
		return s.transport.SetLineQuantity(ctx, in.Key, 0)
	case SetNote:
		return nil, s.transport.SetNote(ctx, in.Text)
	case ClearCart:
		return s.transport.ClearCart(ctx)
	case Refresh:
		return s.transport.FetchCart(ctx)
	}
	return nil, shop.NewValidationError("intent", "unsupported intent "+in.String())
}

func (s *Store) settle(ctx context.Context, res result) {
	seq := s.inflightSeq
	s.inflight, s.inflightSeq = nil, 0
	s.phase = Idle

	switch {
	case shop.Applied(res.err):
		// The server took the mutation but the cart could not be read back.
		// Keep the speculative edit and read the cart again before anything else.
		cart := s.confirmed.Clone()
		res.intent.apply(&cart)
		s.confirmed = normalize(cart)
		s.queue = append([]ticket{{seq: seq, intent: Refresh{}}}, s.queue...)
		s.logger.Warn("intent applied, cart unknown", "intent", res.intent, "err", res.err)

	case res.err != nil:
		dropped := len(s.queue)
		s.queue = nil
		s.settled = s.accepted
		s.logger.Warn("intent failed", "intent", res.intent, "kind", shop.KindOf(res.err), "dropped", dropped, "err", res.err)
		s.publish(s.confirmed.Clone(), false, res.err, s.accepted)
		return

	case res.cart != nil:
		s.confirmed = normalize(*res.cart)
		s.logger.Debug("intent reconciled", "intent", res.intent, "items", len(s.confirmed.Items))

	default:
		// the note endpoint reports no cart; the speculative edit is the truth
		cart := s.confirmed.Clone()
		res.intent.apply(&cart)
		s.confirmed = cart
		s.logger.Debug("intent reconciled", "intent", res.intent, "items", len(s.confirmed.Items))
	}

	s.settled = max(s.settled, seq)
	s.publish(s.confirmed.Clone(), false, nil, seq)

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.begin(ctx, next)
	}
}

// enqueue appends t, replacing a queued intent with the same target in place.
func (s *Store) enqueue(t ticket) {
	if target := t.intent.target(); target != "" {
		for i, q := range s.queue {
			if q.intent.target() == target {
				s.queue[i] = t
				return
			}
		}
	}
	s.queue = append(s.queue, t)
}

// speculate returns the confirmed cart with the in-flight and queued intents applied.
func (s *Store) speculate() shop.Cart {
	cart := s.confirmed.Clone()
	if s.inflight != nil {
		s.inflight.apply(&cart)
	}
	for _, q := range s.queue {
		q.intent.apply(&cart)
	}
	return cart
}

// publish notifies subscribers; seq is the newest ticket reflected in cart.
func (s *Store) publish(cart shop.Cart, pending bool, err error, seq uint64) {
	snap := Snapshot{
		Cart:    normalize(cart),
		Pending: pending,
		Err:     err,
		Phase:   s.phase,
		Seq:     seq,
		Settled: s.settled,
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap.clone())
	}
}

func normalize(cart shop.Cart) shop.Cart {
	if cart.Items == nil {
		cart.Items = []shop.LineItem{}
	}
	return cart
}
