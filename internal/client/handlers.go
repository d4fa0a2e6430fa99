package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/chat"
	"kvchat/internal/models"
	"kvchat/internal/ui"
	"kvchat/internal/utils"
)

const (
	roomRefreshInterval = 5 * time.Second
	toastDuration       = 2 * time.Second
)

func (a *App) LoginHandler(username, passphrase string) {
	if !a.connecting.CompareAndSwap(false, true) {
		return
	}
	if passphrase == "" {
		passphrase = a.cfg.Passphrase
	}
	a.goBackground(func(ctx context.Context) {
		s, err := Connect(ctx, a.cfg, username, passphrase, a.logger)
		if err != nil {
			a.connecting.Store(false)
			a.logger.Warn("Login failed", zap.String("user", username), zap.Error(err))
			a.update(func() {
				a.UI.ShowError("Login failed", err.Error(), "Retry", 0, nil)
			})
			return
		}
		a.mu.Lock()
		a.session = s
		a.mu.Unlock()
		a.logger.Info("Logged in", zap.String("user", s.Username))

		a.update(func() {
			a.UI.ShowChat(s.Username)
		})
		a.refreshRooms(ctx, s)
		a.goBackground(a.autoRefresh)
	})
}

func (a *App) autoRefresh(ctx context.Context) {
	ticker := time.NewTicker(roomRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s := a.Session(); s != nil {
				a.refreshRooms(ctx, s)
			}
		}
	}
}

func (a *App) refreshRooms(ctx context.Context, s *Session) {
	rooms, err := s.Rooms(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("Room refresh failed", zap.Error(err))
			a.update(func() {
				a.UI.ChatScreen.SetStatus("store unavailable: " + err.Error())
			})
		}
		return
	}
	entries := make([]ui.RoomEntry, 0, len(rooms))
	for _, r := range rooms {
		entries = append(entries, ui.RoomEntry{Name: r.Name, Joined: r.Joined, Pending: r.Pending})
	}
	a.update(func() {
		a.UI.ChatScreen.UpdateRoomList(entries)
	})
}

func (a *App) RefreshHandler() {
	s := a.Session()
	if s == nil {
		return
	}
	a.goBackground(func(ctx context.Context) {
		a.refreshRooms(ctx, s)
	})
}

// CreateRoomHandler checks the name right away so the form can show the
// error, then creates the room in the background and enters it.
func (a *App) CreateRoomHandler(name string) error {
	s := a.Session()
	if s == nil {
		return ErrNotLoggedIn
	}
	if err := utils.ValidateName("room name", name); err != nil {
		return err
	}
	a.goBackground(func(ctx context.Context) {
		if err := s.CreateRoom(ctx, name); err != nil {
			a.logger.Warn("Create room failed", zap.String("room", name), zap.Error(err))
			a.update(func() {
				a.UI.ShowError("Create room failed", err.Error(), "OK", 0, nil)
			})
			return
		}
		a.update(func() {
			a.UI.ShowToast(fmt.Sprintf("Room %s created", name), toastDuration, nil)
		})
		a.refreshRooms(ctx, s)
		a.update(func() {
			a.EnterRoomHandler(name)
		})
	})
	return nil
}

// EnterRoomHandler switches to room. The join wait, if any, and the feed run
// in the background until the room is left.
func (a *App) EnterRoomHandler(room string) {
	s := a.Session()
	if s == nil {
		return
	}
	a.mu.Lock()
	active := a.room != nil && a.room.name == room && !a.room.done.Load()
	a.mu.Unlock()
	if active {
		return
	}
	a.LeaveRoomHandler()

	ctx, cancel := context.WithCancel(a.ctx)
	rs := &roomSession{name: room, cancel: cancel}
	a.mu.Lock()
	a.room = rs
	a.mu.Unlock()

	a.UI.ChatScreen.OpenRoom(room)
	if !s.Keys.HasRoomKey(room) {
		a.UI.ChatScreen.SetStatus("waiting for approval")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer rs.done.Store(true)
		a.followRoom(ctx, s, room)
	}()
}

func (a *App) followRoom(ctx context.Context, s *Session, room string) {
	result, err := s.Enter(ctx, room)
	if err != nil {
		a.logger.Warn("Join failed", zap.String("room", room), zap.Error(err))
		a.roomUpdate(ctx, room, func() {
			a.UI.ChatScreen.SetStatus("join failed: " + err.Error())
		})
		return
	}
	switch result {
	case models.TimedOut:
		a.roomUpdate(ctx, room, func() {
			a.UI.ChatScreen.SetStatus("")
			a.UI.ChatScreen.AppendNotice("no approval yet; select the room again to keep waiting")
		})
		return
	case models.Cancelled:
		return
	}
	a.roomUpdate(ctx, room, func() {
		a.UI.ChatScreen.SetStatus("")
	})
	a.refreshRooms(ctx, s)

	feed, err := s.Follow(ctx, room, true)
	if err != nil {
		a.roomUpdate(ctx, room, func() {
			a.UI.ChatScreen.SetStatus("history unavailable: " + err.Error())
		})
		return
	}
	if len(feed.Backlog) > 0 {
		backlog := feed.Backlog
		a.roomUpdate(ctx, room, func() {
			for _, msg := range backlog {
				a.UI.ChatScreen.AppendMessage(msg)
			}
		})
	}
	for ev := range feed.Events() {
		a.roomUpdate(ctx, room, func() {
			a.showEvent(ev)
		})
	}
}

func (a *App) showEvent(ev models.Event) {
	screen := a.UI.ChatScreen
	switch ev.Kind {
	case models.EventMessage:
		screen.SetStatus("")
		screen.AppendMessage(ev.Message)
	case models.EventMemberJoined:
		screen.AppendNotice(fmt.Sprintf("%s asked to join", ev.Member))
	case models.EventUndecryptable:
		screen.AppendNotice(fmt.Sprintf("message %d could not be decrypted", ev.Index))
	case models.EventError:
		if errors.Is(ev.Err, chat.ErrKeyUnavailable) {
			screen.SetStatus("waiting for approval")
			return
		}
		screen.SetStatus("store unavailable: " + ev.Err.Error())
	}
}

// roomUpdate applies f only while room is still the one on screen.
func (a *App) roomUpdate(ctx context.Context, room string, f func()) {
	if ctx.Err() != nil {
		return
	}
	a.update(func() {
		if ctx.Err() != nil || a.UI.ChatScreen.CurrentRoom() != room {
			return
		}
		f()
	})
}

func (a *App) LeaveRoomHandler() {
	a.mu.Lock()
	rs := a.room
	a.room = nil
	a.mu.Unlock()
	if rs == nil {
		return
	}
	rs.cancel()
	a.UI.ChatScreen.CloseRoom()
}

func (a *App) SendMessageHandler(text string) error {
	s := a.Session()
	if s == nil {
		return ErrNotLoggedIn
	}
	room := a.CurrentRoom()
	if room == "" {
		return ErrNoRoom
	}
	if _, approval := parseApproval(text); !approval {
		if err := validateMessage(text); err != nil {
			return err
		}
	}
	a.goBackground(func(ctx context.Context) {
		if err := s.Submit(ctx, room, text); err != nil {
			a.logger.Warn("Submit failed", zap.String("room", room), zap.Error(err))
			a.update(func() {
				if IsRecoverable(err) {
					a.UI.ChatScreen.SetStatus(err.Error())
					return
				}
				a.UI.ShowError("Send failed", err.Error(), "OK", 0, nil)
			})
		}
	})
	return nil
}
