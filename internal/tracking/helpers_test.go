package tracking

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/status"
)

const testWait = 2 * time.Second

type fakeStream struct {
	frames chan Frame
	closes atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan Frame)}
}

func (f *fakeStream) Frames() <-chan Frame { return f.frames }

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	return nil
}

// send blocks until the session goroutine has received the frame, which also
// means every earlier frame has been fully processed.
func (f *fakeStream) send(t *testing.T, frame Frame) {
	t.Helper()
	select {
	case f.frames <- frame:
	case <-time.After(testWait):
		t.Fatal("timed out delivering frame")
	}
}

func (f *fakeStream) sendMessage(t *testing.T, msg status.Message) {
	t.Helper()
	payload, err := status.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.send(t, Frame{Payload: payload})
}

type manualTimer struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTimer) C() <-chan time.Time { return m.ch }

func (m *manualTimer) Stop() bool {
	return !m.stopped.Swap(true)
}

func (m *manualTimer) fire() {
	m.ch <- time.Now()
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) factory(time.Duration) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *manualClock) latest(t *testing.T) *manualTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("no timer armed")
	}
	return c.timers[len(c.timers)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
	hook   func(events.Event)
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(evt)
	}
	r.notify <- struct{}{}
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) slugs() []string {
	var out []string
	for _, evt := range r.snapshot() {
		out = append(out, evt.Detail.Slug)
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(testWait)
	for {
		if len(r.snapshot()) >= n {
			return
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, r.slugs())
		}
	}
}

func startTestSession(t *testing.T, stream Stream, pub events.Publisher, clock *manualClock) *Session {
	t.Helper()
	opts := Options{RequestID: "book-123", Timeout: time.Minute, Publisher: pub}
	if clock != nil {
		opts.newTimer = clock.factory
	}
	s, err := Start(stream, opts)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(testWait):
		t.Fatal("session did not finish")
	}
}

func equalSlugs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
