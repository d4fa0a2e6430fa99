package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"kvchat/internal/models"
)

const (
	DefaultWriteQueueSize = 256
	defaultBatchSize      = 50
	defaultFlushFreq      = 200 * time.Millisecond
	writeTimeout          = 5 * time.Second
)

// HistoryManager batches writes of delivered messages into the cache and
// remembers the last cached index per room.
type HistoryManager struct {
	store  *Store
	logger *zap.Logger

	// write queue and worker control
	writeQ   chan models.Message
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stateMu  sync.RWMutex
	stopped  bool
	startOne sync.Once

	// in-memory cache (last index per room)
	lastIndexMu sync.RWMutex
	lastIndex   map[string]int

	writeBatchSize int           // how many messages to write in a single transaction
	writeFlushFreq time.Duration // max wait before flushing batch
}

// NewHistoryManager returns a ready-to-start history manager.
// writeQSize: buffered channel size for incoming writes.
func NewHistoryManager(store *Store, writeQSize int, logger *zap.Logger) *HistoryManager {
	if writeQSize <= 0 {
		writeQSize = DefaultWriteQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryManager{
		store:          store,
		logger:         logger.Named("history"),
		writeQ:         make(chan models.Message, writeQSize),
		stopCh:         make(chan struct{}),
		lastIndex:      make(map[string]int),
		writeBatchSize: defaultBatchSize,
		writeFlushFreq: defaultFlushFreq,
	}
}

// Start launches the background writer. Call Stop to cleanly shut down.
func (h *HistoryManager) Start() {
	h.startOne.Do(func() {
		h.wg.Add(1)
		go h.writeWorker()
	})
}

// Stop stops the worker and blocks until the queue is drained. Later calls
// are no-ops.
func (h *HistoryManager) Stop() {
	h.stateMu.Lock()
	if h.stopped {
		h.stateMu.Unlock()
		return
	}
	h.stopped = true
	close(h.stopCh)
	h.stateMu.Unlock()
	h.wg.Wait()
}

// Enqueue schedules msg for writing. It never blocks: a full queue fails
// fast with ErrQueueFull.
func (h *HistoryManager) Enqueue(msg models.Message) error {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	if h.stopped {
		return ErrStopped
	}
	select {
	case h.writeQ <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// writeWorker batches writes into the DB to limit transactions and contention.
func (h *HistoryManager) writeWorker() {
	defer h.wg.Done()
	batch := make([]models.Message, 0, h.writeBatchSize)
	flushTimer := time.NewTimer(h.writeFlushFreq)
	defer flushTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := h.store.SaveMessages(ctx, batch...); err != nil {
			h.logger.Error("Failed to save history batch", zap.Int("size", len(batch)), zap.Error(err))
		} else {
			for _, m := range batch {
				h.setLastIndex(m.Room, m.Index)
			}
			h.logger.Debug("History batch saved", zap.Int("size", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-h.stopCh:
			// drain queue before exiting
			for {
				select {
				case msg := <-h.writeQ:
					batch = append(batch, msg)
					if len(batch) >= h.writeBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case msg := <-h.writeQ:
			batch = append(batch, msg)
			if len(batch) >= h.writeBatchSize {
				flush()
				if !flushTimer.Stop() {
					<-flushTimer.C
				}
				flushTimer.Reset(h.writeFlushFreq)
			}
		case <-flushTimer.C:
			flush()
			flushTimer.Reset(h.writeFlushFreq)
		}
	}
}

func (h *HistoryManager) setLastIndex(room string, idx int) {
	h.lastIndexMu.Lock()
	defer h.lastIndexMu.Unlock()
	if existing, ok := h.lastIndex[room]; !ok || idx > existing {
		h.lastIndex[room] = idx
	}
}

// LastIndex returns the highest cached index of room, or ErrNoRows when
// nothing is cached.
func (h *HistoryManager) LastIndex(ctx context.Context, room string) (int, error) {
	h.lastIndexMu.RLock()
	v, ok := h.lastIndex[room]
	h.lastIndexMu.RUnlock()
	if ok {
		return v, nil
	}
	idx, err := h.store.LatestIndex(ctx, room)
	if err != nil {
		return 0, err
	}
	h.setLastIndex(room, idx)
	return idx, nil
}

// NextIndex is the first log index of room that is not cached. Writes can
// be dropped, so the cache may have holes and this is not always the index
// after the last cached one.
func (h *HistoryManager) NextIndex(ctx context.Context, room string) (int, error) {
	return h.store.FirstMissingIndex(ctx, room)
}

// CachedIndices returns the cached indices of room at or above since.
func (h *HistoryManager) CachedIndices(ctx context.Context, room string, since int) (map[int]struct{}, error) {
	return h.store.IndicesSince(ctx, room, since)
}

// Recent returns up to limit of the newest cached messages of room, oldest
// first.
func (h *HistoryManager) Recent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	return h.store.LatestMessages(ctx, room, limit)
}

// Forget drops the cache of room.
func (h *HistoryManager) Forget(ctx context.Context, room string) error {
	h.lastIndexMu.Lock()
	delete(h.lastIndex, room)
	h.lastIndexMu.Unlock()
	n, err := h.store.DeleteRoom(ctx, room)
	if err != nil {
		return err
	}
	h.logger.Debug("History dropped", zap.String("room", room), zap.Int64("rows", n))
	return nil
}
