package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var banner = `
 _                 _           _
| | ____   _____ _| |__   __ _| |_
| |/ /\ \ / / __| '_ \ / _' | __|
|   <  \ V / (__| | | | (_| | |_
|_|\_\  \_/ \___|_| |_|\__,_|\__|
`

type LoginScreen struct {
	*UI
	layout *tview.Flex
	form   *tview.Form

	Username   string
	Passphrase string
	onLogin    func(username, passphrase string)
}

func (l *LoginScreen) build() {
	l.layout = tview.NewFlex()
	l.layout.SetDirection(tview.FlexRow).
		SetBorder(false)

	header := tview.NewTextView().
		SetText(banner).
		SetTextAlign(tview.AlignCenter)
	header.SetTextStyle(tcell.StyleDefault.
		Foreground(l.Theme.GetColor("accent")).
		Background(l.Theme.GetColor("background")))

	headerContainer := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(header, 7, 0, false).
		AddItem(nil, 0, 1, false)
	l.layout.AddItem(headerContainer, 0, 2, false)

	l.form = tview.NewForm()
	bgColor, fieldBg, buttonBg, buttonText, fieldText := l.Theme.FormColors()
	l.form.SetBackgroundColor(bgColor)
	l.form.SetButtonBackgroundColor(buttonBg)
	l.form.SetButtonTextColor(buttonText)
	l.form.SetFieldBackgroundColor(fieldBg)
	l.form.SetFieldTextColor(fieldText)
	l.form.SetLabelColor(l.Theme.GetColor("primary"))
	l.form.SetBorder(true)
	l.form.SetBorderColor(l.Theme.GetColor("border"))
	l.form.SetBorderAttributes(tcell.AttrNone)
	l.form.SetButtonsAlign(tview.AlignCenter)
	l.form.SetTitle("[ Who are you? ]")

	l.form.AddInputField("Username", l.Username, 0, nil,
		func(s string) { l.Username = s })
	l.form.AddPasswordField("Key passphrase", l.Passphrase, 0, '*',
		func(s string) { l.Passphrase = s })
	l.form.AddButton("Enter", l.submit)
	l.form.AddButton("Quit", func() { l.App.Stop() })

	formContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(nil, 0, 1, false).
		AddItem(l.form, 0, 2, true).
		AddItem(nil, 0, 1, false)
	l.layout.AddItem(nil, 0, 1, false)
	l.layout.AddItem(formContainer, 9, 0, true)
	l.layout.AddItem(nil, 0, 1, false)
}

func (l *LoginScreen) submit() {
	if l.Username == "" {
		l.ShowError("Error", "Username cannot be empty", "OK", 0, nil)
		return
	}
	if l.onLogin != nil {
		l.onLogin(l.Username, l.Passphrase)
	}
}
