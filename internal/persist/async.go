package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AsyncArchiver queues snapshots for a background writer. Record never
// blocks: when the queue is full the snapshot is dropped and counted.
type AsyncArchiver struct {
	backend Archive
	log     *zap.Logger
	timeout time.Duration

	ch     chan ArchivedSnapshot
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewAsyncArchiver(backend Archive, queueSize int, log *zap.Logger) *AsyncArchiver {
	if queueSize <= 0 {
		queueSize = 16
	}
	a := &AsyncArchiver{
		backend: backend,
		log:     log,
		timeout: 10 * time.Second,
		ch:      make(chan ArchivedSnapshot, queueSize),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a
}

func (a *AsyncArchiver) loop() {
	for s := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.backend.Record(ctx, s)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.log.Error("archive snapshot failed", zap.Uint64("tick", s.Tick), zap.Error(err))
			continue
		}
		a.written.Add(1)
	}
}

// Record queues s. ctx is unused; the writer applies its own timeout.
func (a *AsyncArchiver) Record(_ context.Context, s ArchivedSnapshot) error {
	if a.closed.Load() {
		return ErrClosed
	}
	select {
	case a.ch <- s:
	default:
		a.dropped.Add(1)
		a.log.Warn("archive queue full, snapshot dropped", zap.Uint64("tick", s.Tick))
	}
	return nil
}

func (a *AsyncArchiver) List(ctx context.Context, limit int) ([]ArchiveInfo, error) {
	return a.backend.List(ctx, limit)
}

func (a *AsyncArchiver) Load(ctx context.Context, id string) (ArchivedSnapshot, error) {
	return a.backend.Load(ctx, id)
}

// Written, Dropped and Failed count snapshots by outcome.
func (a *AsyncArchiver) Written() uint64 { return a.written.Load() }
func (a *AsyncArchiver) Dropped() uint64 { return a.dropped.Load() }
func (a *AsyncArchiver) Failed() uint64  { return a.failed.Load() }

// Close drains the queue, waits for the writer and closes the backend.
// Record must not be called concurrently with Close.
func (a *AsyncArchiver) Close() error {
	var err error
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
		a.wg.Wait()
		err = a.backend.Close()
	})
	return err
}
