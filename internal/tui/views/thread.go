package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	core "github.com/pigeonchat/pigeon/internal/model"
)

// Thread displays the open conversation.
type Thread struct {
	*tview.TextView
}

// NewThread creates the message thread view.
func NewThread() *Thread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &Thread{TextView: tv}
}

// SetPartner updates the title with the conversation partner's name.
func (th *Thread) SetPartner(name string) {
	th.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update rerenders the thread. Messages arrive oldest first. Sent
// messages show a check mark once delivery is confirmed; typing shows
// a trailing indicator line.
func (th *Thread) Update(msgs []core.Message, selfID, partnerName string, partnerTyping bool) {
	th.Clear()

	for _, m := range msgs {
		sender := partnerName
		mark := ""
		if m.SenderID == selfID {
			sender = "You"
			if m.DeliveredAt != nil {
				mark = " [green]✓[-]"
			}
		}
		body := m.Text
		if m.ImageURL != "" {
			if body != "" {
				body += "\n"
			}
			body += "[image: " + m.ImageURL + "]"
		}
		ts := formatTimestamp(m.CreatedAt)
		_, _ = fmt.Fprintf(th, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", sender, ts, mark, body)
	}
	if partnerTyping {
		_, _ = fmt.Fprintf(th, "[::d]%s is typing...[-:-:-]\n", partnerName)
	}

	th.ScrollToEnd()
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
