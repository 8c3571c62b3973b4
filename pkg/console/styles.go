package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Styles оформление служебных сообщений консоли.
// Рендерер привязан к writer: если это не терминал, вывод остается простым текстом.
type Styles struct {
	Notice lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
}

// NewStyles создает стили для writer
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Notice: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		Error:  r.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}
