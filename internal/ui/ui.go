// Package ui is the terminal interface: a login screen and a chat screen
// with the room list, the message view and the composer. It only renders and
// forwards user intent to the handlers it is given.
package ui

import (
	"github.com/rivo/tview"
)

const (
	pageLogin      = "login"
	pageChat       = "chat"
	pageCreateRoom = "createRoom"
	pageToast      = "toast"
	pageError      = "error"
)

// Handlers are invoked on the UI goroutine. Anything that talks to the store
// must return quickly and continue in the background.
type Handlers struct {
	Login      func(username, passphrase string)
	CreateRoom func(name string) error
	EnterRoom  func(name string)
	LeaveRoom  func()
	Send       func(text string) error
	Refresh    func()
}

type Config struct {
	Theme    *Theme
	Username string
	Handlers Handlers
}

type UI struct {
	App   *tview.Application
	Theme *Theme
	Pages *tview.Pages

	LoginScreen *LoginScreen
	ChatScreen  *ChatScreen
}

func New(cfg Config) *UI {
	app := tview.NewApplication().EnableMouse(true)
	tview.Borders.HorizontalFocus = tview.Borders.Horizontal
	tview.Borders.VerticalFocus = tview.Borders.Vertical
	tview.Borders.TopLeftFocus = '╭'
	tview.Borders.TopRightFocus = '╮'
	tview.Borders.BottomLeftFocus = '╰'
	tview.Borders.BottomRightFocus = '╯'

	if cfg.Theme == nil {
		cfg.Theme = DefaultTheme()
	}
	ui := &UI{
		App:   app,
		Theme: cfg.Theme,
	}
	tview.Styles.PrimitiveBackgroundColor = ui.Theme.GetColor("background")
	tview.Styles.ContrastBackgroundColor = ui.Theme.GetColor("background-light")
	tview.Styles.PrimaryTextColor = ui.Theme.GetColor("foreground")
	tview.Styles.TitleColor = ui.Theme.GetColor("primary")
	tview.Styles.BorderColor = ui.Theme.GetColor("border")

	ui.LoginScreen = &LoginScreen{
		UI:       ui,
		Username: cfg.Username,
		onLogin:  cfg.Handlers.Login,
	}
	ui.LoginScreen.build()

	ui.ChatScreen = &ChatScreen{
		UI:           ui,
		onCreateRoom: cfg.Handlers.CreateRoom,
		onEnterRoom:  cfg.Handlers.EnterRoom,
		onLeaveRoom:  cfg.Handlers.LeaveRoom,
		onSend:       cfg.Handlers.Send,
		onRefresh:    cfg.Handlers.Refresh,
	}
	ui.ChatScreen.build()

	ui.Pages = tview.NewPages().
		AddPage(pageLogin, ui.LoginScreen.layout, true, true).
		AddPage(pageChat, ui.ChatScreen.layout, true, false)
	ui.App.SetRoot(ui.Pages, true).
		SetFocus(ui.LoginScreen.form)
	return ui
}

func (ui *UI) Run() error {
	return ui.App.Run()
}

func (ui *UI) Stop() {
	ui.App.Stop()
}

// Update runs f on the UI goroutine and redraws. Safe from any goroutine.
func (ui *UI) Update(f func()) {
	ui.App.QueueUpdateDraw(f)
}

func (ui *UI) ShowLogin() {
	ui.Pages.SwitchToPage(pageLogin)
	ui.App.SetFocus(ui.LoginScreen.form)
}

func (ui *UI) ShowChat(username string) {
	ui.ChatScreen.setUser(username)
	ui.Pages.SwitchToPage(pageChat)
	ui.App.SetFocus(ui.ChatScreen.roomList)
}

// centered wraps p in spacers so it floats in the middle of the screen.
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
