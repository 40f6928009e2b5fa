package views

import (
	"fmt"

	"github.com/rivo/tview"

	core "github.com/pigeonchat/pigeon/internal/model"
)

// Sidebar lists users with presence dots and unread badges.
type Sidebar struct {
	*tview.Table
	users      []core.User
	selectedFn func() (int, int)
}

// NewSidebar creates the user list table.
func NewSidebar() *Sidebar {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Users ")

	sb := &Sidebar{Table: table}
	sb.selectedFn = table.GetSelection
	return sb
}

// Update refreshes the list. Callers pass users already ordered
// online-first; online and unread carry the per-user indicators.
func (sb *Sidebar) Update(users []core.User, online func(string) bool, unread func(string) int) {
	prevRow, _ := sb.selectedFn()
	sb.users = users
	sb.Clear()

	for i, u := range users {
		dot := "[gray]o[-]"
		if online(u.ID) {
			dot = "[green]*[-]"
		}
		name := u.DisplayName
		if name == "" {
			name = u.Username
		}
		if n := unread(u.ID); n > 0 {
			name = fmt.Sprintf("%s [red](%d)[-]", name, n)
		}
		sb.SetCell(i, 0, tview.NewTableCell(" "+dot))
		sb.SetCell(i, 1, tview.NewTableCell(name).SetExpansion(1))
	}
	if prevRow >= 0 && prevRow < len(users) {
		sb.Select(prevRow, 0)
	}
}

// SelectedUser returns the ID of the highlighted user, or "".
func (sb *Sidebar) SelectedUser() string {
	row, _ := sb.selectedFn()
	if row >= 0 && row < len(sb.users) {
		return sb.users[row].ID
	}
	return ""
}
