package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/models"
)

const defaultEventBuffer = 64

// Poller watches one room by diffing local cursors against the store
// counters. It delivers everything it observes on Events and is the only
// writer of its cursors.
type Poller struct {
	client   *Client
	room     string
	interval time.Duration
	announce bool
	events   chan models.Event
	logger   *zap.Logger

	lastSeenMessages int
	lastSeenMembers  int
	// primed is set once the member baseline has been read.
	primed atomic.Bool
}

type PollerOption func(*Poller)

// WithStartIndex makes the poller skip log entries below index, typically
// those already held in the local history.
func WithStartIndex(index int) PollerOption {
	return func(p *Poller) {
		if index > 0 {
			p.lastSeenMessages = index
		}
	}
}

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithAnnounceJoins controls whether new members are announced with an admin
// message in the room log. It is on by default.
func WithAnnounceJoins(announce bool) PollerOption {
	return func(p *Poller) {
		p.announce = announce
	}
}

func WithEventBuffer(size int) PollerOption {
	return func(p *Poller) {
		if size >= 0 {
			p.events = make(chan models.Event, size)
		}
	}
}

func (c *Client) NewPoller(room string, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   c,
		room:     room,
		interval: c.pollInterval,
		announce: true,
		events:   make(chan models.Event, defaultEventBuffer),
		logger:   c.logger.With(zap.String("room", room)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events is closed when Run returns.
func (p *Poller) Events() <-chan models.Event {
	return p.events
}

// Run polls until ctx is cancelled. Store failures are reported as
// EventError and retried on the next cycle.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.events)
	p.logger.Debug("Poller started", zap.Int("from", p.lastSeenMessages))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Poller stopped", zap.Int("cursor", p.lastSeenMessages))
			return
		case <-timer.C:
		}
		p.poll(ctx)
		timer.Reset(p.interval)
	}
}

// poll runs a single cycle.
func (p *Poller) poll(ctx context.Context) {
	if !p.primed.Load() {
		// members present before the session started are not announced
		n, err := p.client.MemberCount(ctx, p.room)
		if err != nil {
			p.fail(ctx, err)
			return
		}
		p.lastSeenMembers = n
		p.primed.Store(true)
	}
	if !p.pollMessages(ctx) {
		return
	}
	p.pollMembers(ctx)
}

func (p *Poller) pollMessages(ctx context.Context) bool {
	count, err := p.client.Count(ctx, p.room)
	if err != nil {
		p.fail(ctx, err)
		return false
	}
	for p.lastSeenMessages < count {
		index := p.lastSeenMessages
		msg, err := p.client.Read(ctx, p.room, index)
		switch {
		case err == nil:
			if !p.emit(ctx, models.Event{Kind: models.EventMessage, Room: p.room, Index: index, Message: msg}) {
				return false
			}
		case errors.Is(err, ErrDecryptionIntegrity), errors.Is(err, ErrMessageNotFound):
			// one bad entry must not stall the room
			p.logger.Warn("Skipping unreadable message", zap.Int("index", index), zap.Error(err))
			if !p.emit(ctx, models.Event{Kind: models.EventUndecryptable, Room: p.room, Index: index, Err: err}) {
				return false
			}
		default:
			p.fail(ctx, err)
			return false
		}
		p.lastSeenMessages = index + 1
	}
	return true
}

func (p *Poller) pollMembers(ctx context.Context) {
	n, err := p.client.MemberCount(ctx, p.room)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	if n <= p.lastSeenMembers {
		p.lastSeenMembers = n
		return
	}
	members, err := p.client.ListMembers(ctx, p.room)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	for p.lastSeenMembers < n && p.lastSeenMembers < len(members) {
		member := members[p.lastSeenMembers]
		// a member is reported once, after its announcement is written
		if p.announce {
			if _, err := p.client.Append(ctx, p.room, models.AdminAuthor, JoinRequestText(member)); err != nil {
				p.fail(ctx, err)
				return
			}
		}
		p.lastSeenMembers++
		if !p.emit(ctx, models.Event{Kind: models.EventMemberJoined, Room: p.room, Member: member}) {
			return
		}
	}
}

func (p *Poller) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	p.logger.Warn("Poll cycle failed", zap.Error(err))
	p.emit(ctx, models.Event{Kind: models.EventError, Room: p.room, Err: err})
}

func (p *Poller) emit(ctx context.Context, ev models.Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
