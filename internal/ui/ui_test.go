package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvchat/internal/models"
	"kvchat/internal/utils"
)

func TestDefaultTheme(t *testing.T) {
	theme := DefaultTheme()
	assert.Equal(t, "default", theme.Name)
	for _, name := range []string{"background", "foreground", "primary", "border", "red", "admin"} {
		assert.True(t, theme.HasColor(name), name)
	}
	assert.Equal(t, tcell.NewRGBColor(166, 227, 161), theme.GetColor("green"))
	assert.Equal(t, tcell.ColorWhite, theme.GetColor("missing"))
	assert.Equal(t, "[#89b4fa]", theme.Tag("primary"))
}

func TestLoadThemeFillsMissingColors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: light
colors:
  background: "#fff"
  primary: navy
  accent: {r: 10, g: 20, b: 30}
`), 0o600))

	theme, err := LoadTheme(path)
	require.NoError(t, err)
	assert.Equal(t, "light", theme.Name)
	assert.Equal(t, tcell.NewRGBColor(255, 255, 255), theme.GetColor("background"))
	assert.Equal(t, tcell.ColorNavy, theme.GetColor("primary"))
	assert.Equal(t, tcell.NewRGBColor(10, 20, 30), theme.GetColor("accent"))
	assert.Equal(t, DefaultTheme().GetColor("border"), theme.GetColor("border"))
}

func TestParseThemeErrors(t *testing.T) {
	for _, body := range []string{
		"colors: [",
		"colors:\n  a: \"#12345\"\n",
		"colors:\n  a: rgb(1, 2)\n",
		"colors:\n  a: rgb(1, 2, 300)\n",
		"colors:\n  a: {r: 1, g: 2}\n",
		"colors:\n  a: notacolor\n",
		"colors:\n  a: 1.5\n",
	} {
		_, err := ParseTheme([]byte(body))
		require.ErrorIs(t, err, utils.ErrTheme, body)
	}

	_, err := LoadTheme(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, utils.ErrTheme)
}

func TestFormatMessage(t *testing.T) {
	theme := DefaultTheme()
	line := FormatMessage(theme, models.Message{Author: "bob", Text: "hi [red]there"})
	assert.Contains(t, line, "["+utils.ColorFor("bob")+"]bob:")
	assert.Contains(t, line, "hi [red[]there")

	admin := FormatMessage(theme, models.Message{Author: models.AdminAuthor, Text: "User bob accepted by alice."})
	assert.Contains(t, admin, theme.Tag("admin")+"User bob accepted by alice.")
	assert.NotContains(t, admin, "admin:")
}

func newTestUI(t *testing.T, h Handlers) *UI {
	t.Helper()
	return New(Config{Username: "alice", Handlers: h})
}

func TestLoginSubmit(t *testing.T) {
	var gotUser, gotPass string
	u := newTestUI(t, Handlers{Login: func(user, pass string) {
		gotUser, gotPass = user, pass
	}})
	assert.Equal(t, "alice", u.LoginScreen.Username)

	u.LoginScreen.Passphrase = "secret"
	u.LoginScreen.submit()
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "secret", gotPass)

	gotUser = ""
	u.LoginScreen.Username = ""
	u.LoginScreen.submit()
	assert.Empty(t, gotUser)
	assert.True(t, u.Pages.HasPage(pageError))
}

func TestChatScreenRoomsAndMessages(t *testing.T) {
	var entered string
	u := newTestUI(t, Handlers{EnterRoom: func(name string) { entered = name }})
	c := u.ChatScreen
	u.ShowChat("alice")

	c.UpdateRoomList([]RoomEntry{{Name: "lobby", Joined: true}, {Name: "dev", Pending: true}})
	require.Equal(t, 2, c.roomList.GetItemCount())
	main, _ := c.roomList.GetItemText(0)
	assert.Equal(t, "… dev", main)

	c.roomList.SetCurrentItem(1)
	c.UpdateRoomList(c.Rooms())
	assert.Equal(t, 1, c.roomList.GetCurrentItem())

	c.OpenRoom("lobby")
	assert.Equal(t, "lobby", c.CurrentRoom())
	main, _ = c.roomList.GetItemText(1)
	assert.Equal(t, "▸ lobby", main)

	c.AppendMessage(models.Message{Room: "lobby", Author: "bob", Text: "hello"})
	c.AppendMessage(models.Message{Room: "dev", Author: "bob", Text: "elsewhere"})
	c.AppendNotice("waiting for approval")
	text := c.MessagesText()
	assert.Contains(t, text, "bob: hello")
	assert.NotContains(t, text, "elsewhere")
	assert.Contains(t, text, "-- waiting for approval")

	c.CloseRoom()
	assert.Empty(t, c.CurrentRoom())
	assert.Empty(t, strings.TrimSpace(c.MessagesText()))

	c.UpdateRoomList(nil)
	assert.Zero(t, c.roomList.GetItemCount())
	assert.Empty(t, entered)
}

func TestComposerSends(t *testing.T) {
	var sent []string
	u := newTestUI(t, Handlers{Send: func(text string) error {
		sent = append(sent, text)
		return nil
	}})
	c := u.ChatScreen
	c.OpenRoom("lobby")

	c.msgInput.SetText("!bob", true)
	assert.Nil(t, c.composerKeys(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)))
	assert.Equal(t, []string{"!bob"}, sent)
	assert.Empty(t, c.msgInput.GetText())

	// empty input is not sent
	assert.Nil(t, c.composerKeys(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)))
	assert.Len(t, sent, 1)

	key := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	assert.Same(t, key, c.composerKeys(key))
}
