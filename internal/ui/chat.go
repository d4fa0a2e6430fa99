package ui

import (
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"kvchat/internal/models"
	"kvchat/internal/utils"
)

// RoomEntry is one line of the room list.
type RoomEntry struct {
	Name string
	// Joined marks rooms whose key this user holds.
	Joined bool
	// Pending marks rooms with a join request awaiting approval.
	Pending bool
}

type ChatScreen struct {
	*UI
	layout      *tview.Flex
	roomList    *tview.List
	roomPane    *tview.Flex
	roomWrapper *tview.Flex
	noRoomView  *tview.TextView
	createBtn   *tview.Button
	chatView    *tview.Flex
	messages    *tview.TextView
	status      *tview.TextView
	msgInput    *tview.TextArea
	modalForm   *tview.Form

	rooms    []RoomEntry
	room     string
	username string

	onCreateRoom func(name string) error
	onEnterRoom  func(name string)
	onLeaveRoom  func()
	onSend       func(text string) error
	onRefresh    func()
}

func (c *ChatScreen) build() {
	c.layout = tview.NewFlex()
	c.layout.SetDirection(tview.FlexColumn).
		SetBorder(false)

	c.roomList = tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true).
		SetSelectedBackgroundColor(c.Theme.GetColor("background-light")).
		SetSelectedTextColor(c.Theme.GetColor("primary")).
		SetMainTextColor(c.Theme.GetColor("foreground"))
	c.roomList.SetBackgroundColor(c.Theme.GetColor("background"))

	c.noRoomView = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetTextColor(c.Theme.GetColor("foreground-dark")).
		SetText("No room yet.")

	c.createBtn = tview.NewButton("Create Room")
	c.createBtn.SetSelectedFunc(c.showCreateRoomForm).
		SetLabelColor(c.Theme.GetColor("button-text")).
		SetBackgroundColor(c.Theme.GetColor("button-active"))

	c.roomPane = tview.NewFlex().SetDirection(tview.FlexRow)
	c.roomPane.AddItem(c.noRoomView, 0, 1, false)

	c.roomWrapper = tview.NewFlex().SetDirection(tview.FlexRow)
	c.roomWrapper.AddItem(c.roomPane, 0, 1, true).
		AddItem(c.createBtn, 1, 0, false)
	c.roomWrapper.SetBorder(true).
		SetTitle("[ Rooms ]").
		SetTitleColor(c.Theme.GetColor("primary")).
		SetBorderColor(c.Theme.GetColor("border")).
		SetBackgroundColor(c.Theme.GetColor("background")).
		SetBorderPadding(1, 1, 1, 1)

	c.messages = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true).
		SetScrollable(true).
		SetChangedFunc(func() { c.messages.ScrollToEnd() })
	c.messages.SetBorder(true).
		SetTitle("[ no room ]").
		SetTitleColor(c.Theme.GetColor("primary")).
		SetBorderColor(c.Theme.GetColor("border")).
		SetBackgroundColor(c.Theme.GetColor("background")).
		SetBorderPadding(1, 1, 2, 2)

	c.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextColor(c.Theme.GetColor("foreground-dark"))

	c.msgInput = tview.NewTextArea().
		SetPlaceholder(`Type a message. "!<user>" approves a join request.`).
		SetPlaceholderStyle(tcell.StyleDefault.
			Background(c.Theme.GetColor("background")).
			Foreground(c.Theme.GetColor("foreground-dark"))).
		SetTextStyle(tcell.StyleDefault.
			Background(c.Theme.GetColor("background")).
			Foreground(c.Theme.GetColor("foreground")))
	c.msgInput.SetWordWrap(true).SetWrap(true)
	c.msgInput.SetBorder(true).
		SetBorderColor(c.Theme.GetColor("foreground-dark"))
	c.msgInput.SetInputCapture(c.composerKeys)

	c.chatView = tview.NewFlex().SetDirection(tview.FlexRow)
	c.chatView.AddItem(c.messages, 0, 1, false).
		AddItem(c.status, 1, 0, false).
		AddItem(c.msgInput, 5, 0, true)

	c.layout.AddItem(c.roomWrapper, 0, 1, true).
		AddItem(c.chatView, 0, 4, false)
	c.layout.SetInputCapture(c.screenKeys)
}

func (c *ChatScreen) composerKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		if event.Modifiers()&tcell.ModAlt != 0 {
			return event
		}
		text := c.msgInput.GetText()
		if text == "" || c.onSend == nil {
			return nil
		}
		if err := c.onSend(text); err != nil {
			c.ShowError("Send message failed", err.Error(), "OK", 0, nil)
			return nil
		}
		c.msgInput.SetText("", false)
		return nil
	}
	return event
}

func (c *ChatScreen) screenKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyTAB:
		if c.msgInput.HasFocus() {
			c.App.SetFocus(c.roomList)
		} else if c.room != "" {
			c.App.SetFocus(c.msgInput)
		}
		return nil
	case tcell.KeyESC:
		if c.room != "" && c.onLeaveRoom != nil {
			c.onLeaveRoom()
			c.App.SetFocus(c.roomList)
		}
		return nil
	case tcell.KeyCtrlR:
		if c.onRefresh != nil {
			c.onRefresh()
		}
		return nil
	}
	return event
}

func (c *ChatScreen) setUser(username string) {
	c.username = username
	c.roomWrapper.SetTitle(fmt.Sprintf("[ %s ]", username))
}

// UpdateRoomList replaces the room list, keeping the selection on the same
// room when it is still listed.
func (c *ChatScreen) UpdateRoomList(rooms []RoomEntry) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].Name < rooms[j].Name
	})
	selected := ""
	if cur := c.roomList.GetCurrentItem(); cur >= 0 && cur < len(c.rooms) {
		selected = c.rooms[cur].Name
	}
	c.rooms = rooms

	c.roomPane.Clear()
	c.roomList.Clear()
	if len(rooms) == 0 {
		c.roomPane.AddItem(c.noRoomView, 0, 1, false)
		return
	}
	c.roomPane.AddItem(c.roomList, 0, 1, true)
	for i, rm := range rooms {
		c.roomList.AddItem(c.roomLine(rm), "", 0, func() {
			if c.onEnterRoom != nil {
				c.onEnterRoom(rm.Name)
			}
		})
		if rm.Name == selected {
			c.roomList.SetCurrentItem(i)
		}
	}
}

func (c *ChatScreen) roomLine(rm RoomEntry) string {
	marker := "  "
	switch {
	case rm.Name == c.room:
		marker = "▸ "
	case rm.Pending:
		marker = "… "
	case rm.Joined:
		marker = "• "
	}
	return marker + tview.Escape(rm.Name)
}

func (c *ChatScreen) Rooms() []RoomEntry {
	return c.rooms
}

// OpenRoom switches the message view to room and clears it.
func (c *ChatScreen) OpenRoom(room string) {
	c.room = room
	c.messages.Clear()
	c.messages.SetTitle(fmt.Sprintf("[ %s ]", tview.Escape(room)))
	c.SetStatus("")
	c.UpdateRoomList(c.rooms)
	c.App.SetFocus(c.msgInput)
}

func (c *ChatScreen) CloseRoom() {
	c.room = ""
	c.messages.Clear()
	c.messages.SetTitle("[ no room ]")
	c.SetStatus("")
	c.UpdateRoomList(c.rooms)
}

func (c *ChatScreen) CurrentRoom() string {
	return c.room
}

func (c *ChatScreen) AppendMessage(msg models.Message) {
	if msg.Room != c.room {
		return
	}
	fmt.Fprintln(c.messages, FormatMessage(c.Theme, msg))
}

// AppendNotice writes a local line that is not part of the room log.
func (c *ChatScreen) AppendNotice(text string) {
	fmt.Fprintf(c.messages, "%s-- %s[-]\n", c.Theme.Tag("foreground-dark"), tview.Escape(text))
}

func (c *ChatScreen) SetStatus(text string) {
	c.status.SetText(tview.Escape(text))
}

func (c *ChatScreen) MessagesText() string {
	return c.messages.GetText(true)
}

// FormatMessage renders msg as one tview line with color tags.
func FormatMessage(theme *Theme, msg models.Message) string {
	ts := tview.Escape("[" + utils.FormatPrettyTime(msg.Timestamp) + "]")
	if msg.IsAdmin() {
		return fmt.Sprintf("%s%s %s%s[-]",
			theme.Tag("timestamp"), ts, theme.Tag("admin"), tview.Escape(msg.Text))
	}
	return fmt.Sprintf("%s%s [%s]%s:[-] %s",
		theme.Tag("timestamp"), ts, utils.ColorFor(msg.Author), tview.Escape(msg.Author), tview.Escape(msg.Text))
}

func (c *ChatScreen) showCreateRoomForm() {
	c.modalForm = tview.NewForm()
	bgColor, fieldBg, buttonBg, buttonText, fieldText := c.Theme.FormColors()
	c.modalForm.SetBackgroundColor(bgColor)
	c.modalForm.SetButtonBackgroundColor(buttonBg)
	c.modalForm.SetButtonTextColor(buttonText)
	c.modalForm.SetFieldBackgroundColor(fieldBg)
	c.modalForm.SetFieldTextColor(fieldText)
	c.modalForm.SetLabelColor(c.Theme.GetColor("primary"))
	c.modalForm.SetBorder(true)
	c.modalForm.SetBorderColor(c.Theme.GetColor("border"))
	c.modalForm.SetBorderAttributes(tcell.AttrNone)
	c.modalForm.SetButtonsAlign(tview.AlignCenter)

	c.modalForm.AddInputField("Name", "", 0, nil, nil).
		AddButton("Create", func() {
			name := c.modalForm.GetFormItemByLabel("Name").(*tview.InputField).GetText()
			if c.onCreateRoom == nil {
				return
			}
			if err := c.onCreateRoom(name); err != nil {
				c.ShowError("Create room failed", err.Error(), "OK", 0, nil)
				return
			}
			c.Pages.RemovePage(pageCreateRoom)
			c.App.SetFocus(c.roomList)
		}).
		AddButton("Cancel", func() {
			c.Pages.RemovePage(pageCreateRoom)
			c.App.SetFocus(c.roomList)
		})
	c.modalForm.SetTitle("[ Create Room ]").
		SetTitleAlign(tview.AlignCenter).
		SetTitleColor(c.Theme.GetColor("primary"))

	c.Pages.AddPage(pageCreateRoom, centered(c.modalForm, 40, 7), true, true)
	c.App.SetFocus(c.modalForm)
}
