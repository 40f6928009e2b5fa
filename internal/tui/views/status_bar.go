package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// StatusBar displays the profile, connection state and flash messages.
type StatusBar struct {
	*tview.TextView
	profile string
	state   string
	sending bool
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetSending updates the in-flight send indicator.
func (sb *StatusBar) SetSending(sending bool) {
	sb.sending = sending
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	color := "red"
	if sb.state == "READY" {
		color = "green"
	}
	sendIcon := " "
	if sb.sending {
		sendIcon = "[yellow]~[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] %s", sb.profile, color, sb.state, sendIcon)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
