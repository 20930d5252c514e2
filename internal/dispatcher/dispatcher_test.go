package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Job
	d.Register("sync", func(ctx context.Context, j Job) error {
		got = j
		return errors.New("boom")
	})

	err := d.Dispatch(Job{Kind: "sync", Key: "1_---"})

	if err == nil || err.Error() != "boom" {
		t.Errorf("expected handler error, got %v", err)
	}
	if got.Key != "1_---" {
		t.Errorf("expected key 1_---, got %q", got.Key)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(Job{Kind: "nope"})

	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("fetch", func(ctx context.Context, j Job) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(Job{Kind: "fetch"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_WorkersRunConcurrently(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("fetch", func(ctx context.Context, j Job) error {
		defer wg.Done()
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	}, Buffered(10), Workers(3))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(Job{Kind: "fetch"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for peak.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 concurrent workers, peak was %d", peak.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(release)
	wg.Wait()
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("full", func(ctx context.Context, j Job) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	d.Dispatch(Job{Kind: "full"}) // being processed
	<-started
	d.Dispatch(Job{Kind: "full"}) // queued
	d.Dispatch(Job{Kind: "full"}) // queued

	err := d.Dispatch(Job{Kind: "full"})

	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	var processed atomic.Int32
	d.Register("fetch", func(ctx context.Context, j Job) error {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil
	}, Buffered(10), Workers(2))

	for i := 0; i < 5; i++ {
		if err := d.Dispatch(Job{Kind: "fetch"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after Close, got %d", processed.Load())
	}
	if err := d.Dispatch(Job{Kind: "fetch"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// closing twice is a no-op
	d.Close()
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("err", func(ctx context.Context, j Job) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(Job{Kind: "err", Key: "k"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("exists", func(ctx context.Context, j Job) error { return nil })

	if !d.HasHandler("exists") {
		t.Error("expected handler to exist")
	}

	if d.HasHandler("missing") {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var wg sync.WaitGroup
	wg.Add(1)

	d.Register("combined", func(ctx context.Context, j Job) error {
		wg.Done()
		return nil
	}, Buffered(100), Workers(4), Logged())

	if err := d.Dispatch(Job{Kind: "combined"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	wg.Wait()
	d.Close()

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected log messages, got %d", len(logger.messages))
	}
}

func TestNewInstruments(t *testing.T) {
	m, in, err := newInstruments()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || in.queueSize == nil || in.processed == nil || in.dropped == nil || in.failed == nil {
		t.Errorf("expected every instrument to be created, got %+v", in)
	}
}
