package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pigeonchat/pigeon/internal/client/api"
	"github.com/pigeonchat/pigeon/internal/tui/keys"
	"github.com/pigeonchat/pigeon/internal/tui/model"
	"github.com/pigeonchat/pigeon/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	vm        *model.ViewModel
	emitter   *model.TypingEmitter
	registry  *keys.Registry
	sidebar   *views.Sidebar
	thread    *views.Thread
	composer  *views.Composer
	statusBar *views.StatusBar
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(profile string, vm *model.ViewModel, emitter *model.TypingEmitter) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		vm:        vm,
		emitter:   emitter,
		registry:  keys.NewRegistry(),
		sidebar:   views.NewSidebar(),
		thread:    views.NewThread(),
		composer:  views.NewComposer(),
		statusBar: views.NewStatusBar(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("users", &keys.Action{
		Rune: 'u', Key: tcell.KeyRune,
		Description: "u:users", Visible: true,
		Handler: func() { a.app.SetFocus(a.sidebar) },
	})
}

func (a *App) setupCallbacks() {
	a.sidebar.SetSelectedFunc(func(row, col int) {
		if id := a.sidebar.SelectedUser(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnChange(func(text string) {
		if other := a.vm.Selected(); other != "" {
			a.emitter.InputChanged(other, text)
		}
	})

	a.composer.SetOnSend(func(text string) {
		a.emitter.Stop()
		go func() {
			_ = a.vm.Send(a.ctx, api.SendRequest{Text: text})
		}()
	})
}

func (a *App) setupLayout() {
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	main := tview.NewFlex().
		AddItem(a.sidebar, 28, 0, true).
		AddItem(right, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyTab {
			if a.app.GetFocus() == a.sidebar {
				a.app.SetFocus(a.composer.InputField)
			} else {
				a.app.SetFocus(a.sidebar)
			}
			return nil
		}

		// Let the composer handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent("main", event) {
			return nil
		}
		return event
	})
}

func (a *App) openConversation(userID string) {
	a.emitter.Stop()
	go func() {
		a.vm.SelectConversation(a.ctx, userID)
		a.app.QueueUpdateDraw(func() {
			a.thread.SetPartner(a.partnerName(userID))
			a.app.SetFocus(a.composer.InputField)
		})
	}()
}

func (a *App) partnerName(userID string) string {
	for _, u := range a.vm.Users() {
		if u.ID == userID {
			if u.DisplayName != "" {
				return u.DisplayName
			}
			return u.Username
		}
	}
	return userID
}

func (a *App) redraw() {
	a.sidebar.Update(a.vm.Users(), a.vm.IsOnline, a.vm.UnreadFor)

	if other := a.vm.Selected(); other != "" {
		a.thread.Update(a.vm.Messages(), a.vm.SelfID(), a.partnerName(other), a.vm.IsTyping(other))
	}

	a.statusBar.SetState(string(a.vm.ConnState()))
	a.statusBar.SetSending(a.vm.Sending())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		_ = a.vm.LoadUsers(a.ctx)
		a.app.QueueUpdateDraw(a.redraw)
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

func (a *App) startRefreshLoop() {
	// The view model signals most refreshes; the ticker only re-pulls
	// the user directory so newly registered users appear.
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.redraw)
			case <-ticker.C:
				_ = a.vm.LoadUsers(a.ctx)
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.emitter.Stop()
	a.cancel()
	a.app.Stop()
}
