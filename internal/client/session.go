package client

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kvchat/internal/chat"
	"kvchat/internal/config"
	"kvchat/internal/crypto"
	"kvchat/internal/kv"
	"kvchat/internal/models"
	"kvchat/internal/profile"
	"kvchat/internal/storage"
)

// Session is one user's connection to the store together with the local
// state the protocol needs: the key store and the history cache.
type Session struct {
	Username string
	Chat     *chat.Client
	Keys     *profile.KeyStore
	// History is nil when the cache is disabled.
	History *storage.HistoryManager

	cfg       *config.Config
	store     kv.Store
	historyDB *storage.Store
	logger    *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// RoomStatus is a room as seen by the session user.
type RoomStatus struct {
	Name string
	// Joined is set when the room private key is held locally.
	Joined bool
	// Pending is set when a join request is waiting for approval.
	Pending bool
}

// Connect opens the profile of username, then the configured store.
func Connect(ctx context.Context, cfg *config.Config, username, passphrase string, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys, err := profile.Open(cfg.DataDir, username, passphrase)
	if err != nil {
		return nil, err
	}
	store, err := kv.Open(ctx, cfg.Store, logger.Named("kv"))
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg, store, keys, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// newSession takes ownership of store.
func newSession(cfg *config.Config, store kv.Store, keys *profile.KeyStore, logger *zap.Logger) (*Session, error) {
	engine, err := crypto.NewEngine(cfg.Crypto.Scheme, cfg.Crypto.RSABits)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Username: keys.Username(),
		Keys:     keys,
		cfg:      cfg,
		store:    store,
		logger:   logger.With(zap.String("user", keys.Username())),
	}
	s.Chat = chat.NewClient(store, engine, keys,
		chat.WithLogger(logger),
		chat.WithPollInterval(cfg.PollInterval),
		chat.WithJoinPollInterval(cfg.JoinPollInterval),
	)

	if cfg.History.Enabled {
		db, err := storage.OpenHistory(cfg.HistoryPath(s.Username))
		if err != nil {
			return nil, err
		}
		s.historyDB = db
		s.History = storage.NewHistoryManager(db, cfg.History.QueueSize, logger)
		s.History.Start()
	}
	s.logger.Info("Session opened",
		zap.String("scheme", cfg.Crypto.Scheme),
		zap.Bool("transactional", s.Chat.Transactional()),
		zap.Bool("history", cfg.History.Enabled))
	return s, nil
}

// Rooms lists every room in the store with the local membership state.
func (s *Session) Rooms(ctx context.Context) ([]RoomStatus, error) {
	names, err := s.Chat.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.Keys.PendingRooms()
	if err != nil {
		return nil, err
	}
	out := make([]RoomStatus, 0, len(names))
	for _, name := range names {
		out = append(out, RoomStatus{
			Name:    name,
			Joined:  s.Keys.HasRoomKey(name),
			Pending: slices.Contains(pending, name),
		})
	}
	return out, nil
}

func (s *Session) CreateRoom(ctx context.Context, room string) error {
	return s.Chat.CreateRoom(ctx, s.Username, room)
}

// RemoveRoom drops room from the room list and from the local history.
func (s *Session) RemoveRoom(ctx context.Context, room string) error {
	if err := s.Chat.RemoveRoom(ctx, room); err != nil {
		return err
	}
	if s.History != nil {
		return s.History.Forget(ctx, room)
	}
	return nil
}

// Enter makes the user a member of room, waiting for approval if needed.
// The wait is bounded by join_timeout and by ctx.
func (s *Session) Enter(ctx context.Context, room string) (models.GrantResult, error) {
	if s.Keys.HasRoomKey(room) {
		return models.Granted, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()
	result, err := s.Chat.Join(ctx, s.Username, room)
	if err != nil {
		return result, err
	}
	s.logger.Info("Join finished", zap.String("room", room), zap.Stringer("result", result))
	return result, nil
}

// Submit handles one line typed into room. "!<user>" approves a pending
// member; anything else is appended as a message.
func (s *Session) Submit(ctx context.Context, room, line string) error {
	if room == "" {
		return ErrNoRoom
	}
	if candidate, ok := parseApproval(line); ok {
		return s.Approve(ctx, room, candidate)
	}
	if err := validateMessage(line); err != nil {
		return err
	}
	if !s.Keys.HasRoomKey(room) {
		return ErrNotApproved.WithDetails(room)
	}
	if _, err := s.Chat.Append(ctx, room, s.Username, line); err != nil {
		return ErrSendMessageFailed.Wrap(err)
	}
	return nil
}

// Approve grants candidate the room key. Only listed members can be
// approved.
func (s *Session) Approve(ctx context.Context, room, candidate string) error {
	listed, err := s.Chat.ApproveListed(ctx, s.Username, candidate, room)
	if err != nil {
		return err
	}
	if !listed {
		return ErrNoPendingUser.WithDetails(candidate)
	}
	s.logger.Info("Member approved", zap.String("room", room), zap.String("member", candidate))
	return nil
}

// Feed is the live view of one room.
type Feed struct {
	// Backlog holds the newest cached messages, oldest first.
	Backlog []models.Message
	events  chan models.Event
}

// Events is closed once the context given to Follow is cancelled.
func (f *Feed) Events() <-chan models.Event {
	return f.events
}

// Follow starts watching room, which must have been entered. Cached history
// is returned as the backlog. The poller starts at the first index missing
// from the cache, and messages already cached past it are not delivered
// again; every delivered message is added to the cache. announce controls
// whether new members are announced in the log.
func (s *Session) Follow(ctx context.Context, room string, announce bool) (*Feed, error) {
	if !s.Keys.HasRoomKey(room) {
		return nil, ErrNotApproved.WithDetails(room)
	}
	feed := &Feed{events: make(chan models.Event)}
	start := 0
	var cached map[int]struct{}
	if s.History != nil {
		var err error
		if start, err = s.History.NextIndex(ctx, room); err != nil {
			return nil, err
		}
		if cached, err = s.History.CachedIndices(ctx, room, start); err != nil {
			return nil, err
		}
		if limit := s.cfg.History.ShowLatest; limit > 0 {
			if feed.Backlog, err = s.History.Recent(ctx, room, limit); err != nil {
				return nil, err
			}
		}
	}

	p := s.Chat.NewPoller(room, chat.WithStartIndex(start), chat.WithAnnounceJoins(announce))
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		p.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		defer close(feed.events)
		for ev := range p.Events() {
			if ev.Kind == models.EventMessage {
				if _, ok := cached[ev.Index]; ok {
					continue
				}
				s.record(ev.Message)
			}
			select {
			case feed.events <- ev:
			case <-ctx.Done():
				// drain so the poller can exit
				for range p.Events() {
				}
				return
			}
		}
	}()
	return feed, nil
}

func (s *Session) record(msg models.Message) {
	if s.History == nil {
		return
	}
	if err := s.History.Enqueue(msg); err != nil {
		s.logger.Warn("Message not cached", zap.String("room", msg.Room), zap.Int("index", msg.Index), zap.Error(err))
	}
}

// Close waits for running feeds, whose contexts must be cancelled first,
// then flushes the history and closes the store.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.wg.Wait()
		var err error
		if s.History != nil {
			s.History.Stop()
		}
		if s.historyDB != nil {
			err = multierr.Append(err, s.historyDB.Close())
		}
		if s.store != nil {
			err = multierr.Append(err, s.store.Close())
		}
		s.closeErr = err
		s.logger.Info("Session closed", zap.Error(err))
	})
	return s.closeErr
}

// IsRecoverable reports errors the user can fix by trying again with other
// input.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		chat.ErrDuplicateRoom,
		chat.ErrAlreadyMember,
		chat.ErrInvalidName,
		chat.ErrRoomNotFound,
		ErrNotApproved,
		ErrNoPendingUser,
		profile.ErrInvalidPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
