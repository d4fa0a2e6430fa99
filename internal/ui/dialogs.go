package ui

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ShowToast shows message in a modal. With duration > 0 it dismisses itself.
func (ui *UI) ShowToast(message string, duration time.Duration, onDismiss func()) {
	ui.showModal(pageToast, "", message, "OK", "primary", duration, onDismiss)
}

// ShowError shows an error modal titled title with a single action button.
func (ui *UI) ShowError(title, message, actionName string, duration time.Duration, onDismiss func()) {
	ui.showModal(pageError, title, message, actionName, "red", duration, onDismiss)
}

func (ui *UI) showModal(page, title, message, action, color string, duration time.Duration, onDismiss func()) {
	previous := ui.App.GetFocus()
	dismissed := false
	dismiss := func() {
		if dismissed {
			return
		}
		dismissed = true
		ui.Pages.RemovePage(page)
		if previous != nil {
			ui.App.SetFocus(previous)
		}
		if onDismiss != nil {
			onDismiss()
		}
	}

	bg, text, _ := ui.Theme.ModalColors()
	modal := tview.NewModal().
		SetText(message).
		SetTextColor(text).
		AddButtons([]string{action}).
		SetDoneFunc(func(int, string) { dismiss() }).
		SetButtonStyle(tcell.StyleDefault.
			Background(bg).
			Foreground(ui.Theme.GetColor(color))).
		SetButtonActivatedStyle(tcell.StyleDefault.
			Background(ui.Theme.GetColor(color)).
			Foreground(bg))
	modal.SetBackgroundColor(bg).
		SetBorder(true).
		SetBorderColor(ui.Theme.GetColor(color))
	if title != "" {
		modal.SetTitle(title).
			SetTitleColor(ui.Theme.GetColor(color)).
			SetTitleAlign(tview.AlignCenter)
	}

	ui.Pages.AddPage(page, modal, true, true)
	ui.App.SetFocus(modal)

	if duration > 0 {
		go func() {
			time.Sleep(duration)
			ui.App.QueueUpdateDraw(dismiss)
		}()
	}
}
