// Package client ties the protocol, the local state and the terminal UI
// together into the interactive application.
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"kvchat/internal/config"
	"kvchat/internal/ui"
)

// App is the interactive client. UI handlers run on the UI goroutine and
// hand anything touching the store to background goroutines, which report
// back through UI.Update.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	UI     *ui.UI

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// connecting is set from the first login attempt until it fails.
	connecting atomic.Bool

	mu      sync.Mutex
	session *Session
	room    *roomSession
}

// roomSession is the room currently shown. cancel stops its join wait or
// its feed; done is set once neither is running.
type roomSession struct {
	name   string
	cancel context.CancelFunc
	done   atomic.Bool
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	theme, err := ui.LoadTheme(cfg.Theme)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:    cfg,
		logger: logger.Named("client"),
		ctx:    ctx,
		cancel: cancel,
	}
	app.UI = ui.New(ui.Config{
		Theme:    theme,
		Username: cfg.Username,
		Handlers: ui.Handlers{
			Login:      app.LoginHandler,
			CreateRoom: app.CreateRoomHandler,
			EnterRoom:  app.EnterRoomHandler,
			LeaveRoom:  app.LeaveRoomHandler,
			Send:       app.SendMessageHandler,
			Refresh:    app.RefreshHandler,
		},
	})
	return app, nil
}

// Run blocks until the UI exits, then shuts the session down.
func (a *App) Run() error {
	a.logger.Info("Client started")
	err := a.UI.Run()
	if serr := a.Shutdown(); serr != nil {
		a.logger.Error("Shutdown failed", zap.Error(serr))
		if err == nil {
			err = serr
		}
	}
	return err
}

func (a *App) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) CurrentRoom() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.room == nil {
		return ""
	}
	return a.room.name
}

// goBackground runs f on a tracked goroutine.
func (a *App) goBackground(f func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		f(a.ctx)
	}()
}

// update queues f on the UI goroutine unless the app is shutting down.
func (a *App) update(f func()) {
	if a.ctx.Err() != nil {
		return
	}
	a.UI.Update(f)
}
