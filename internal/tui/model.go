// Package tui is the Bubble Tea storefront served over SSH: a collection
// list, a quick view for adding products and the cart drawer.
package tui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/thomas/storefront-terminal-go/internal/cartstate"
	"github.com/thomas/storefront-terminal-go/internal/catalog"
	"github.com/thomas/storefront-terminal-go/internal/money"
	"github.com/thomas/storefront-terminal-go/internal/render"
	"github.com/thomas/storefront-terminal-go/internal/schedule"
	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// ViewState represents the current view in the application.
type ViewState int

const (
	ViewCollection ViewState = iota
	ViewQuickView
	ViewDrawer
)

// drawer focus
const (
	focusLines = iota
	focusUpsell
)

const (
	actionAdd = "add"
	actionBuy = "buy"
)

// Dispatcher is the part of *cartstate.Store the UI drives.
type Dispatcher interface {
	Submit(cartstate.Intent) uint64
	Snapshot() cartstate.Snapshot
}

// Deps holds everything a session model needs.
type Deps struct {
	Store        Dispatcher
	Updates      <-chan cartstate.Snapshot
	Catalog      *catalog.Catalog
	Money        money.Formatter
	Collection   string
	UpsellLimit  int
	NoteDebounce time.Duration
	Tasks        *schedule.Group
	Logger       *log.Logger
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	deps Deps

	// View state
	viewState ViewState
	width     int
	height    int
	styles    render.Styles
	spinner   spinner.Model

	// Collection view
	productList list.Model
	products    []shop.CollectionProduct
	loading     bool

	// Quick view
	qv             *quickView
	loadingProduct bool

	// Drawer
	latest      cartstate.Snapshot // last snapshot from the store
	outbox      []sent             // intents not settled as of latest
	snap        cartstate.Snapshot // latest with unreflected intents replayed
	focus       int
	lineIdx     int
	upsellIdx   int
	deals       []shop.CollectionProduct
	noteInput   textinput.Model
	editingNote bool
	note        *schedule.Debouncer

	err error
}

// quickView lives behind a pointer so the huh form's value bindings survive
// the model being copied on every Update.
type quickView struct {
	product  *shop.Product
	variant  int64
	quantity string
	action   string
	form     *huh.Form
}

// sent is an intent handed to the store, with its ticket.
type sent struct {
	seq    uint64
	intent cartstate.Intent
}

// productItem implements list.Item for collection products.
type productItem struct {
	product shop.CollectionProduct
	money   money.Formatter
}

func (i productItem) Title() string { return i.product.Title }

func (i productItem) Description() string {
	v := i.product.DefaultVariant()
	if v == nil {
		return i.product.Vendor
	}
	desc := i.money.Format(v.PriceCents(), "")
	if pct, ok := money.DiscountPercent(v.CompareAtCents(), v.PriceCents()); ok {
		desc += fmt.Sprintf(" (-%d%%)", pct)
	}
	if !v.Available {
		desc += " • Sold out"
	}
	if i.product.Vendor != "" {
		desc += " • " + i.product.Vendor
	}
	return desc
}

func (i productItem) FilterValue() string { return i.product.Title }

// Messages
type (
	collectionLoadedMsg struct {
		products []shop.CollectionProduct
	}
	dealsLoadedMsg struct {
		products []shop.CollectionProduct
	}
	productLoadedMsg struct {
		product *shop.Product
	}
	errMsg struct {
		err error
	}
)

// NewModel creates a new TUI model.
func NewModel(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Tasks == nil {
		deps.Tasks = schedule.NewGroup()
	}
	if deps.Collection == "" {
		deps.Collection = "all"
	}
	styles := render.DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(render.ColorCaramel)

	ti := textinput.New()
	ti.Placeholder = "Add a note to your order..."
	ti.CharLimit = 200
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(render.ColorHighlight).
		BorderLeftForeground(render.ColorHighlight)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(render.ColorMocha).
		BorderLeftForeground(render.ColorHighlight)

	productList := list.New([]list.Item{}, delegate, 0, 0)
	productList.Title = "☕ " + deps.Collection
	productList.SetShowHelp(false)
	productList.SetFilteringEnabled(true)
	productList.Styles.Title = styles.ListTitle

	snap := deps.Store.Snapshot()
	return Model{
		deps:        deps,
		latest:      snap,
		viewState:   ViewCollection,
		styles:      styles,
		spinner:     sp,
		productList: productList,
		loading:     true,
		snap:        snap,
		noteInput:   ti,
		note:        schedule.NewDebouncer(deps.Tasks, deps.NoteDebounce),
	}
}

// Init starts the first loads and starts listening for cart snapshots.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadCollection(),
		m.loadDeals(),
		waitForSnapshot(m.deps.Updates),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.productList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.applySnapshot(cartstate.Snapshot(msg))
		return m, waitForSnapshot(m.deps.Updates)

	case collectionLoadedMsg:
		m.loading = false
		m.err = nil
		m.products = msg.products
		items := make([]list.Item, len(msg.products))
		for i, p := range msg.products {
			items[i] = productItem{product: p, money: m.deps.Money}
		}
		m.productList.SetItems(items)
		return m, nil

	case dealsLoadedMsg:
		m.deals = msg.products
		return m, nil

	case productLoadedMsg:
		m.loadingProduct = false
		m.initQuickView(msg.product)
		m.viewState = ViewQuickView
		return m, m.qv.form.Init()

	case errMsg:
		m.err = msg.err
		m.loading = false
		m.loadingProduct = false
		m.deps.Logger.Warn("catalog error", "err", msg.err)
		return m, nil
	}

	if m.viewState == ViewQuickView && m.qv != nil {
		cmds = append(cmds, m.updateForm(msg))
		if m.qv.form.State == huh.StateCompleted {
			m.submitQuickView()
		}
	}
	if m.viewState == ViewCollection {
		var cmd tea.Cmd
		m.productList, cmd = m.productList.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// applySnapshot takes a store snapshot and forgets the intents it settled.
func (m *Model) applySnapshot(s cartstate.Snapshot) {
	m.latest = s
	var kept []sent
	for _, o := range m.outbox {
		if o.seq > s.Settled {
			kept = append(kept, o)
		}
	}
	m.outbox = kept
	m.replay()
	if !m.editingNote {
		m.noteInput.SetValue(m.snap.Cart.Note)
	}
}

// send hands intents to the store in order. Dispatch never blocks, so it
// runs here rather than in a command.
func (m *Model) send(intents ...cartstate.Intent) {
	for _, in := range intents {
		seq := m.deps.Store.Submit(in)
		m.outbox = append(m.outbox, sent{seq: seq, intent: in})
	}
	m.replay()
}

// replay rebuilds the displayed snapshot: the latest one plus every sent
// intent it does not reflect yet. Steppers read from the result, so rapid
// presses build on each other.
func (m *Model) replay() {
	snap := m.latest
	for _, o := range m.outbox {
		if o.seq > m.latest.Seq {
			snap.Cart = cartstate.Apply(snap.Cart, o.intent)
			snap.Pending = true
		}
	}
	m.snap = snap

	if n := len(snap.Cart.Items); m.lineIdx >= n {
		m.lineIdx = max(n-1, 0)
	}
	if n := len(m.upsell().Candidates(snap.Cart)); m.upsellIdx >= n {
		m.upsellIdx = max(n-1, 0)
	}
}

// ============================================
// Keys
// ============================================

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		m.note.Flush()
		return m, tea.Quit
	}

	switch m.viewState {
	case ViewCollection:
		return m.handleCollectionKeys(msg)
	case ViewQuickView:
		return m.handleQuickViewKeys(msg)
	case ViewDrawer:
		return m.handleDrawerKeys(msg)
	}
	return m, nil
}

func (m Model) handleCollectionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.productList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.productList, cmd = m.productList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.note.Flush()
		return m, tea.Quit

	case "c":
		m.viewState = ViewDrawer
		return m, nil

	case "r":
		m.deps.Catalog.Invalidate(m.deps.Collection)
		m.loading = true
		m.send(cartstate.Refresh{})
		return m, m.loadCollection()

	case "enter":
		if item, ok := m.productList.SelectedItem().(productItem); ok {
			m.loadingProduct = true
			return m, m.loadProduct(item.product.Handle)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.productList, cmd = m.productList.Update(msg)
	return m, cmd
}

func (m Model) handleQuickViewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.viewState = ViewCollection
		m.qv = nil
		return m, nil
	}
	if m.qv == nil {
		return m, nil
	}
	cmd := m.updateForm(msg)
	if m.qv.form.State == huh.StateCompleted {
		m.submitQuickView()
	}
	return m, cmd
}

func (m Model) handleDrawerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.editingNote {
		switch key {
		case "enter", "esc":
			m.editingNote = false
			m.noteInput.Blur()
			m.note.Flush()
			return m, nil
		}
		before := m.noteInput.Value()
		var cmd tea.Cmd
		m.noteInput, cmd = m.noteInput.Update(msg)
		if text := m.noteInput.Value(); text != before {
			store := m.deps.Store
			m.note.Call(func() { store.Submit(cartstate.SetNote{Text: text}) })
		}
		return m, cmd
	}

	items := m.snap.Cart.Items
	candidates := m.upsell().Candidates(m.snap.Cart)

	switch key {
	case "esc", "backspace":
		m.viewState = ViewCollection
		return m, nil

	case "q":
		m.note.Flush()
		return m, tea.Quit

	case "tab":
		if m.focus == focusLines && len(candidates) > 0 {
			m.focus = focusUpsell
		} else {
			m.focus = focusLines
		}
		return m, nil

	case "up", "k":
		if m.focus == focusUpsell {
			m.upsellIdx = max(m.upsellIdx-1, 0)
		} else {
			m.lineIdx = max(m.lineIdx-1, 0)
		}
		return m, nil

	case "down", "j":
		if m.focus == focusUpsell {
			m.upsellIdx = min(m.upsellIdx+1, max(len(candidates)-1, 0))
		} else {
			m.lineIdx = min(m.lineIdx+1, max(len(items)-1, 0))
		}
		return m, nil

	case "+", "=":
		if line, ok := m.selectedLine(); ok {
			m.send(cartstate.SetQuantity{Key: line.Key, Quantity: line.Quantity + 1})
		}
		return m, nil

	case "-":
		if line, ok := m.selectedLine(); ok {
			m.send(cartstate.SetQuantity{Key: line.Key, Quantity: line.Quantity - 1})
		}
		return m, nil

	case "x", "d", "delete":
		if line, ok := m.selectedLine(); ok {
			m.send(cartstate.RemoveLine{Key: line.Key})
		}
		return m, nil

	case "n":
		m.editingNote = true
		m.noteInput.SetValue(m.snap.Cart.Note)
		m.noteInput.CursorEnd()
		return m, m.noteInput.Focus()

	case "u":
		if m.upsellIdx < len(candidates) {
			if v := candidates[m.upsellIdx].DefaultVariant(); v != nil {
				m.send(cartstate.AddVariant{VariantID: v.ID, Quantity: 1})
			}
		}
		return m, nil

	case "X":
		m.send(cartstate.ClearCart{})
		return m, nil

	case "r":
		m.send(cartstate.Refresh{})
		return m, nil
	}
	return m, nil
}

// selectedLine returns the highlighted line. Placeholder lines of an add that
// is still in flight cannot be edited.
func (m Model) selectedLine() (shop.LineItem, bool) {
	items := m.snap.Cart.Items
	if m.focus != focusLines || m.lineIdx >= len(items) {
		return shop.LineItem{}, false
	}
	line := items[m.lineIdx]
	if strings.HasPrefix(line.Key, cartstate.PendingKeyPrefix) {
		return shop.LineItem{}, false
	}
	return line, true
}

// ============================================
// Quick View
// ============================================

func (m *Model) initQuickView(p *shop.Product) {
	qv := &quickView{product: p, quantity: "1", action: actionAdd}
	if v := p.FirstAvailableVariant(); v != nil {
		qv.variant = v.ID
	} else if len(p.Variants) > 0 {
		qv.variant = p.Variants[0].ID
	}

	var fields []huh.Field
	if !p.HasOnlyDefaultVariant() {
		var opts []huh.Option[int64]
		for _, v := range p.Variants {
			label := fmt.Sprintf("%s  %s", v.Title, m.deps.Money.Format(v.Price, m.snap.Cart.Currency))
			if !v.Available {
				label += "  (sold out)"
			}
			opts = append(opts, huh.NewOption(label, v.ID))
		}
		fields = append(fields, huh.NewSelect[int64]().
			Title("Variant").
			Options(opts...).
			Value(&qv.variant))
	}

	fields = append(fields,
		huh.NewInput().
			Title("Quantity").
			Value(&qv.quantity).
			Validate(validateQuantity),
		huh.NewSelect[string]().
			Title("Then").
			Options(
				huh.NewOption("Add to cart", actionAdd),
				huh.NewOption("Buy now (replace cart)", actionBuy),
			).
			Value(&qv.action),
	)

	qv.form = huh.NewForm(huh.NewGroup(fields...)).
		WithShowHelp(true).
		WithShowErrors(true)
	m.qv = qv
}

func validateQuantity(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a whole number above zero")
	}
	return nil
}

func (m *Model) updateForm(msg tea.Msg) tea.Cmd {
	form, cmd := m.qv.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.qv.form = f
	}
	return cmd
}

// submitQuickView sends the quick view's choice and opens the drawer.
// Buy now empties the cart first; the store keeps the two intents in order.
func (m *Model) submitQuickView() {
	qv := m.qv
	m.qv = nil
	m.viewState = ViewDrawer
	m.focus = focusLines

	qty, err := strconv.Atoi(strings.TrimSpace(qv.quantity))
	if err != nil {
		qty = 0 // the store rejects it as a validation error
	}
	add := cartstate.AddVariant{VariantID: qv.variant, Quantity: qty}
	if qv.action == actionBuy {
		m.send(cartstate.ClearCart{}, add)
		return
	}
	m.send(add)
}

// ============================================
// Commands
// ============================================

func (m Model) loadCollection() tea.Cmd {
	cat, handle := m.deps.Catalog, m.deps.Collection
	return func() tea.Msg {
		products, err := cat.Collection(context.Background(), handle)
		if err != nil {
			return errMsg{err: err}
		}
		return collectionLoadedMsg{products: products}
	}
}

func (m Model) loadDeals() tea.Cmd {
	cat, handle, limit := m.deps.Catalog, m.deps.Collection, m.deps.UpsellLimit
	return func() tea.Msg {
		// fetch a few spare so products already in the cart can be skipped
		deals, err := cat.Deals(context.Background(), handle, limit*3)
		if err != nil {
			return errMsg{err: err}
		}
		return dealsLoadedMsg{products: deals}
	}
}

func (m Model) loadProduct(handle string) tea.Cmd {
	cat := m.deps.Catalog
	return func() tea.Msg {
		p, err := cat.Product(context.Background(), handle)
		if err != nil {
			return errMsg{err: err}
		}
		return productLoadedMsg{product: p}
	}
}

// ============================================
// Views
// ============================================

func (m Model) upsell() render.Upsell {
	sel := -1
	if m.focus == focusUpsell {
		sel = m.upsellIdx
	}
	return render.Upsell{
		Money:    m.deps.Money,
		Styles:   m.styles,
		Products: m.deals,
		Limit:    m.deps.UpsellLimit,
		Selected: sel,
	}
}

// View renders the current view.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.viewState {
	case ViewCollection:
		content = m.viewCollection()
	case ViewQuickView:
		content = m.viewQuickView()
	case ViewDrawer:
		content = m.viewDrawer()
	}
	return m.styles.App.Render(content)
}

func (m Model) header(title string) string {
	badge := render.Badge{Styles: m.styles}.Render(m.snap)
	if m.snap.Pending {
		badge = m.spinner.View() + " " + badge
	}
	return m.styles.Header.Render(m.styles.HeaderTitle.Render(title) + "  " + badge)
}

func (m Model) viewCollection() string {
	var sb strings.Builder
	sb.WriteString(m.header("☕ Storefront"))
	sb.WriteString("\n")

	switch {
	case m.loading || m.loadingProduct:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" Loading...")
	case m.err != nil:
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)))
	default:
		sb.WriteString(m.productList.View())
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("/ filter • enter quick view • c cart • r refresh • q quit"))
	return sb.String()
}

func (m Model) viewQuickView() string {
	if m.qv == nil {
		return "No product selected"
	}
	p := m.qv.product

	var sb strings.Builder
	sb.WriteString(m.header(p.Title))
	sb.WriteString("\n")

	if p.Vendor != "" {
		sb.WriteString(m.styles.Subtle.Render(p.Vendor))
		sb.WriteString("\n")
	}

	price := p.Price
	compareAt := p.CompareAtPrice
	if v := p.Variant(m.qv.variant); v != nil {
		price, compareAt = v.Price, v.CompareAtPrice
	}
	if pct, ok := money.DiscountPercent(compareAt, price); ok {
		sb.WriteString(m.styles.SalePrice.Render(m.deps.Money.Format(price, m.snap.Cart.Currency)))
		sb.WriteString(" ")
		sb.WriteString(m.styles.Subtle.Strikethrough(true).Render(m.deps.Money.Format(compareAt, m.snap.Cart.Currency)))
		sb.WriteString(" ")
		sb.WriteString(m.styles.Discount.Render(fmt.Sprintf("-%d%%", pct)))
	} else {
		sb.WriteString(m.styles.Price.Render(m.deps.Money.Format(price, m.snap.Cart.Currency)))
	}
	sb.WriteString("  ")
	if p.Available {
		sb.WriteString(m.styles.InStock.Render("● In stock"))
	} else {
		sb.WriteString(m.styles.OutOfStock.Render("○ Sold out"))
	}
	sb.WriteString("\n")

	if desc := PlainText(p.Description); desc != "" {
		width := 60
		if m.width > 10 && m.width-8 < width {
			width = m.width - 8
		}
		sb.WriteString(m.styles.ProductDescription.Width(width).Render(desc))
		sb.WriteString("\n")
	}

	sb.WriteString(m.qv.form.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render("enter confirm • esc back"))
	return sb.String()
}

func (m Model) viewDrawer() string {
	var sb strings.Builder
	sb.WriteString(m.header("🛒 Cart"))
	sb.WriteString("\n")

	sel := -1
	if m.focus == focusLines {
		sel = m.lineIdx
	}
	drawer := render.Drawer{Money: m.deps.Money, Styles: m.styles, Selected: sel}
	sb.WriteString(drawer.Render(m.snap))

	if m.editingNote {
		sb.WriteString("\nNote: ")
		sb.WriteString(m.noteInput.View())
		sb.WriteString("\n")
	}

	if upsell := m.upsell().Render(m.snap); upsell != "" {
		sb.WriteString("\n")
		sb.WriteString(upsell)
	}

	help := "↑/↓ select • +/- quantity • x remove • n note • tab upsell • u add upsell • X clear • r refresh • esc back"
	if m.editingNote {
		help = "type your note • enter done"
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.HelpBar.Render(help))
	return sb.String()
}

// ViewState returns the active view.
func (m Model) ViewState() ViewState {
	return m.viewState
}
