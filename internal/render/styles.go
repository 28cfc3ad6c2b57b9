package render

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorCream     = lipgloss.Color("#FFF8E7")
	ColorCaramel   = lipgloss.Color("#D4A574")
	ColorMocha     = lipgloss.Color("#8B7355")
	ColorHighlight = lipgloss.Color("#FF9800")
	ColorSuccess   = lipgloss.Color("#4CAF50")
	ColorWarning   = lipgloss.Color("#FFC107")
	ColorError     = lipgloss.Color("#F44336")
	ColorMuted     = lipgloss.Color("#9E9E9E")
)

// Styles holds the lipgloss styles shared by all fragments.
type Styles struct {
	App       lipgloss.Style
	ListTitle lipgloss.Style

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderHelp  lipgloss.Style

	// Lines
	Line         lipgloss.Style
	LineSelected lipgloss.Style
	LineMeta     lipgloss.Style
	LinePending  lipgloss.Style

	// Prices
	Price     lipgloss.Style
	SalePrice lipgloss.Style
	Discount  lipgloss.Style
	Total     lipgloss.Style

	// Product
	ProductName        lipgloss.Style
	ProductDescription lipgloss.Style
	InStock            lipgloss.Style
	OutOfStock         lipgloss.Style

	// General
	Badge     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Box       lipgloss.Style
	HelpBar   lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		ListTitle: lipgloss.NewStyle().
			Foreground(ColorCream).
			Background(ColorMocha).
			Bold(true).
			Padding(0, 1),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorMocha).
			MarginBottom(1).
			Padding(0, 1),

		HeaderTitle: lipgloss.NewStyle().
			Foreground(ColorCaramel).
			Bold(true),

		HeaderHelp: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true),

		Line: lipgloss.NewStyle().
			Foreground(ColorCream).
			PaddingLeft(2),

		LineSelected: lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true),

		LineMeta: lipgloss.NewStyle().
			Foreground(ColorMuted),

		LinePending: lipgloss.NewStyle().
			Foreground(ColorWarning).
			Italic(true),

		Price: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),

		SalePrice: lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true),

		Discount: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),

		Total: lipgloss.NewStyle().
			Foreground(ColorCaramel).
			Bold(true).
			MarginTop(1),

		ProductName: lipgloss.NewStyle().
			Foreground(ColorCaramel).
			Bold(true).
			MarginBottom(1),

		ProductDescription: lipgloss.NewStyle().
			Foreground(ColorCream).
			MarginTop(1).
			MarginBottom(1),

		InStock: lipgloss.NewStyle().
			Foreground(ColorSuccess),

		OutOfStock: lipgloss.NewStyle().
			Foreground(ColorError),

		Badge: lipgloss.NewStyle().
			Foreground(ColorCream).
			Background(ColorMocha).
			Padding(0, 1),

		Subtle: lipgloss.NewStyle().
			Foreground(ColorMuted),

		Highlight: lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess),

		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorMocha).
			Padding(1, 2),

		HelpBar: lipgloss.NewStyle().
			Foreground(ColorMuted).
			MarginTop(1),
	}
}
