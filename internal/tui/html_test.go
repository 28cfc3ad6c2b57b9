package tui

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Hello World", "Hello World"},
		{"paragraphs", "<p>First</p><p>Second</p>", "First\nSecond"},
		{"inline tags", "<p>Our <strong>house</strong> <em>blend</em></p>", "Our house blend"},
		{"list", "<ul><li>Medium roast</li><li>Whole bean</li></ul>", "• Medium roast\n• Whole bean"},
		{"breaks", "1L<br>Stovetop<br/>Induction", "1L\nStovetop\nInduction"},
		{"entities", "<p>Bergamot &amp; jasmine &lt;3</p>", "Bergamot & jasmine <3"},
		{"nbsp", "<p>350&nbsp;ml</p>", "350 ml"},
		{"script dropped", "<p>Hi</p><script>alert('x')</script><style>p{}</style>", "Hi"},
		{"whitespace", "<p>  lots   of\n\n   space  </p>", "lots of\nspace"},
		{"heading", "<h2>Notes</h2><p>Cocoa</p>", "Notes\nCocoa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
