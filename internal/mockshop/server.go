// Package mockshop is an in-memory storefront that serves the cart and
// catalog JSON endpoints for local development and tests.
package mockshop

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// CartCookie carries the cart token.
const CartCookie = "cart"

// Server holds the catalog, stock levels and every cart it has handed out.
type Server struct {
	mu       sync.Mutex
	catalog  *Catalog
	byHandle map[string]*Product
	variants map[int64]variantRef
	carts    map[string]*cartState

	latency time.Duration
	logger  *log.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every response.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for the given catalog.
func New(c *Catalog, opts ...Option) *Server {
	s := &Server{
		catalog:  c,
		byHandle: make(map[string]*Product),
		variants: make(map[int64]variantRef),
		carts:    make(map[string]*cartState),
		logger:   log.New(io.Discard),
	}
	for i := range c.Products {
		p := &c.Products[i]
		s.byHandle[p.Handle] = p
		for j := range p.Variants {
			s.variants[p.Variants[j].ID] = variantRef{product: p, variant: &p.Variants[j]}
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.delay)

	r.Get("/cart.js", s.handleCart)
	r.Post("/cart/add.js", s.handleAdd)
	r.Post("/cart/change.js", s.handleChange)
	r.Post("/cart/update.js", s.handleUpdate)
	r.Post("/cart/clear.js", s.handleClear)

	r.Get("/products/{handle}.js", s.handleProduct)
	r.Get("/collections/{handle}/products.json", s.handleCollection)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CartCount returns how many carts have been created.
func (s *Server) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// ============================================
// Middleware
// ============================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			t := time.NewTimer(s.latency)
			select {
			case <-t.C:
			case <-r.Context().Done():
				t.Stop()
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// cartFor returns the caller's cart, creating one and setting the cookie
// when the request has none. s.mu must be held.
func (s *Server) cartFor(w http.ResponseWriter, r *http.Request) *cartState {
	if ck, err := r.Cookie(CartCookie); err == nil {
		if c, ok := s.carts[ck.Value]; ok {
			return c
		}
	}
	c := newCartState()
	s.carts[c.token] = c
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookie,
		Value:    c.token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c
}

// ============================================
// Cart Handlers
// ============================================

type addPayload struct {
	Items []struct {
		ID       int64 `json:"id"`
		Quantity int   `json:"quantity"`
	} `json:"items"`
}

type changePayload struct {
	ID       string `json:"id"`
	Quantity *int   `json:"quantity"`
}

type updatePayload struct {
	Note *string `json:"note"`
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.render(s.cartFor(w, r)))
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addPayload
	if err := decodeBody(r, &req); err != nil || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Parameter Missing or Invalid", "items is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(w, r)

	// validate every item before touching the cart
	for _, item := range req.Items {
		ref, ok := s.variants[item.ID]
		if !ok {
			writeError(w, http.StatusNotFound, http.StatusNotFound, "Cart Error", "Cannot find variant")
			return
		}
		if item.Quantity <= 0 {
			writeError(w, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, "Cart Error", "Quantity must be positive")
			return
		}
		have := 0
		if idx := c.lineFor(item.ID); idx >= 0 {
			have = c.lines[idx].quantity
		}
		if have+item.Quantity > ref.variant.Inventory {
			writeError(w, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, "Cart Error",
				fmt.Sprintf("You can't add more %s to the cart.", ref.lineTitle()))
			return
		}
	}

	added := make([]shop.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		idx := c.lineFor(item.ID)
		if idx < 0 {
			c.lines = append(c.lines, cartLine{key: newLineKey(item.ID), variantID: item.ID})
			idx = len(c.lines) - 1
		}
		c.lines[idx].quantity += item.Quantity
		added = append(added, s.variants[item.ID].lineItem(c.lines[idx]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": added})
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	var req changePayload
	if err := decodeBody(r, &req); err != nil || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Parameter Missing or Invalid", "id and quantity are required")
		return
	}
	if *req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Parameter Missing or Invalid", "quantity must be >= 0")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(w, r)

	idx := c.lineByKey(req.ID)
	if idx < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "no valid id or line parameter", "")
		return
	}

	qty := *req.Quantity
	if qty == 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		writeJSON(w, http.StatusOK, s.render(c))
		return
	}

	ref := s.variants[c.lines[idx].variantID]
	if qty > ref.variant.Inventory {
		writeError(w, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, "Cart Error",
			fmt.Sprintf("You can only add %d %s to the cart.", ref.variant.Inventory, ref.lineTitle()))
		return
	}
	c.lines[idx].quantity = qty
	writeJSON(w, http.StatusOK, s.render(c))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updatePayload
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Parameter Missing or Invalid", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(w, r)
	if req.Note != nil {
		c.note = *req.Note
	}
	writeJSON(w, http.StatusOK, s.render(c))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(w, r)
	c.lines = nil
	writeJSON(w, http.StatusOK, s.render(c))
}

// render builds the storefront view of a cart. s.mu must be held.
func (s *Server) render(c *cartState) shop.Cart {
	out := shop.Cart{
		Token:    c.token,
		Note:     c.note,
		Currency: s.catalog.Currency,
		Items:    make([]shop.LineItem, 0, len(c.lines)),
	}
	for _, l := range c.lines {
		it := s.variants[l.variantID].lineItem(l)
		out.Items = append(out.Items, it)
		out.TotalPrice += it.LinePrice
		out.ItemCount += it.Quantity
	}
	return out
}

// ============================================
// Catalog Handlers
// ============================================

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.byHandle[chi.URLParam(r, "handle")]
	if !ok {
		writeError(w, http.StatusNotFound, http.StatusNotFound, "Not Found", "product not found")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, p.storefront())
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if !s.hasCollection(handle) {
		writeError(w, http.StatusNotFound, http.StatusNotFound, "Not Found", "collection not found")
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 30
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]shop.CollectionProduct, 0)
	for i := range s.catalog.Products {
		p := &s.catalog.Products[i]
		if !p.inCollection(handle) {
			continue
		}
		products = append(products, p.listing())
		if len(products) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) hasCollection(handle string) bool {
	if handle == "all" {
		return true
	}
	for _, c := range s.catalog.Collections {
		if c.Handle == handle {
			return true
		}
	}
	return false
}

// ============================================
// Helpers
// ============================================

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the platform's error body. status in the body is a
// number for cart errors and a string for parameter errors.
func writeError(w http.ResponseWriter, code int, status any, message, description string) {
	body := map[string]any{"status": status, "message": message}
	if description != "" {
		body["description"] = description
	}
	writeJSON(w, code, body)
}
