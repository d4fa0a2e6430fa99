package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"kvchat/internal/kv"
	"kvchat/internal/utils"
)

func TestAppHandlersRequireLogin(t *testing.T) {
	app, err := NewApp(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.ErrorIs(t, app.CreateRoomHandler("lobby"), ErrNotLoggedIn)
	require.ErrorIs(t, app.SendMessageHandler("hi"), ErrNotLoggedIn)
	app.EnterRoomHandler("lobby")
	assert.Empty(t, app.CurrentRoom())

	require.NoError(t, app.Shutdown())
	require.NoError(t, app.Shutdown())
}

func TestAppCreateRoomRejectsInvalidName(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Shutdown()

	app.session = openSession(t, cfg, kv.NewMemoryStore(), "alice")
	err = app.CreateRoomHandler("a/b")
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))

	require.ErrorIs(t, app.SendMessageHandler("hi"), ErrNoRoom)
}

func TestNewAppRejectsMissingTheme(t *testing.T) {
	cfg := testConfig(t)
	cfg.Theme = "/nonexistent/theme.yaml"
	_, err := NewApp(cfg, nil)
	require.Error(t, err)
}
