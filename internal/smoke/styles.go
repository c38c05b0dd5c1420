package smoke

import "github.com/charmbracelet/lipgloss"

var (
	colorPass  = lipgloss.Color("#8BC34A")
	colorFail  = lipgloss.Color("#E53935")
	colorSkip  = lipgloss.Color("#FFC107")
	colorMuted = lipgloss.Color("#8A94A6")
	colorTitle = lipgloss.Color("#2196F3")
)

// Styles renders runner output.
type Styles struct {
	Pass   lipgloss.Style
	Fail   lipgloss.Style
	Skip   lipgloss.Style
	Muted  lipgloss.Style
	Title  lipgloss.Style
	Detail lipgloss.Style
}

// NewStyles returns colored styles, or plain ones when noColor is set.
func NewStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{Pass: plain, Fail: plain, Skip: plain, Muted: plain, Title: plain, Detail: plain.PaddingLeft(6)}
	}
	return Styles{
		Pass:   lipgloss.NewStyle().Foreground(colorPass).Bold(true),
		Fail:   lipgloss.NewStyle().Foreground(colorFail).Bold(true),
		Skip:   lipgloss.NewStyle().Foreground(colorSkip).Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(colorMuted),
		Title:  lipgloss.NewStyle().Foreground(colorTitle).Bold(true),
		Detail: lipgloss.NewStyle().Foreground(colorMuted).PaddingLeft(6),
	}
}
