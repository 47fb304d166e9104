package logger

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

type logEntry struct {
	core   zapcore.Core
	entry  zapcore.Entry
	fields []zapcore.Field
}

// asyncState is shared by an AsyncCore and every child created through With.
type asyncState struct {
	entries       chan logEntry
	flush         chan chan struct{}
	quit          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Uint64
	reported      atomic.Uint64
	base          zapcore.Core
}

// AsyncCore queues entries and writes them to the wrapped core in batches from a
// single goroutine. Entries are dropped, and counted, when the queue is full.
type AsyncCore struct {
	core  zapcore.Core
	state *asyncState
}

func NewAsyncCore(core zapcore.Core, bufferSize, batchSize int, flushInterval time.Duration) *AsyncCore {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 || batchSize > bufferSize {
		batchSize = max(1, bufferSize/10)
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	st := &asyncState{
		entries:       make(chan logEntry, bufferSize),
		flush:         make(chan chan struct{}),
		quit:          make(chan struct{}),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		base:          core,
	}
	st.wg.Add(1)
	go st.run()

	return &AsyncCore{core: core, state: st}
}

func (s *asyncState) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]logEntry, 0, s.batchSize)
	write := func() {
		for _, e := range batch {
			if err := e.core.Write(e.entry, e.fields); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
			}
		}
		batch = batch[:0]
		s.reportDropped()
	}
	drain := func() {
		for {
			select {
			case e := <-s.entries:
				batch = append(batch, e)
				if len(batch) >= s.batchSize {
					write()
				}
			default:
				write()
				return
			}
		}
	}

	for {
		select {
		case e := <-s.entries:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				write()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				write()
			}
		case done := <-s.flush:
			drain()
			close(done)
		case <-s.quit:
			drain()
			return
		}
	}
}

func (s *asyncState) reportDropped() {
	total := s.dropped.Load()
	prev := s.reported.Swap(total)
	if total <= prev {
		return
	}
	_ = s.base.Write(zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Now(),
		LoggerName: "logger",
		Message:    fmt.Sprintf("dropped %d log entries due to full buffer", total-prev),
	}, nil)
}

func (ac *AsyncCore) Enabled(level zapcore.Level) bool {
	return ac.core.Enabled(level)
}

func (ac *AsyncCore) With(fields []zapcore.Field) zapcore.Core {
	return &AsyncCore{core: ac.core.With(fields), state: ac.state}
}

func (ac *AsyncCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ac.Enabled(entry.Level) {
		return ce.AddCore(entry, ac)
	}
	return ce
}

func (ac *AsyncCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	select {
	case <-ac.state.quit:
		return ac.core.Write(entry, fields)
	default:
	}

	select {
	case ac.state.entries <- logEntry{core: ac.core, entry: entry, fields: fields}:
	default:
		ac.state.dropped.Add(1)
	}
	return nil
}

// Sync waits until every queued entry is written, then syncs the wrapped core.
func (ac *AsyncCore) Sync() error {
	done := make(chan struct{})
	select {
	case ac.state.flush <- done:
		<-done
	case <-ac.state.quit:
	}
	return ac.core.Sync()
}

// Dropped reports how many entries were discarded so far.
func (ac *AsyncCore) Dropped() uint64 {
	return ac.state.dropped.Load()
}

// Close drains the queue and stops the writer goroutine. Later writes go to the
// wrapped core synchronously.
func (ac *AsyncCore) Close() {
	ac.state.closeOnce.Do(func() {
		close(ac.state.quit)
	})
	ac.state.wg.Wait()
}
